package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seglab/gosegment/pkg/cluster/kmeans"
	"github.com/seglab/gosegment/pkg/dataset"
	"github.com/seglab/gosegment/pkg/preprocess"
	"github.com/seglab/gosegment/pkg/reduce"
)

func newTrainCmd() *cobra.Command {
	var (
		dataPath string
		creator  string
		sweepK   int
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train new model versions from a CSV dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}

			path := dataPath
			if path == "" {
				path = a.cfg.Dataset.Path
			}
			rows, err := loadCSV(path, a.cfg.Dataset.IDColumn)
			if err != nil {
				return err
			}
			a.log.Info().Str("path", path).Int("rows", len(rows)).Msg("dataset loaded")

			if sweepK > 0 {
				return sweep(a, rows, sweepK)
			}

			result, err := a.engine.Train(cmd.Context(), rows, creator)
			if err != nil {
				return err
			}

			for kind, version := range result.Versions {
				fmt.Printf("%s\t%s\tsilhouette=%.4f\n", kind, version.Version, result.Silhouettes[kind])
			}
			fmt.Printf("run %s on %d samples, explained variance %v\n",
				result.RunID, result.Samples, result.ExplainedVariance)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "CSV dataset path (default: dataset.path from config)")
	cmd.Flags().StringVar(&creator, "creator", "cli", "operator recorded on the new versions")
	cmd.Flags().IntVar(&sweepK, "sweep", 0, "instead of training, print within-cluster sums of squares for k=1..N")
	return cmd
}

// sweep prints the elbow curve used to choose the cluster count.
func sweep(a *app, rows []dataset.Row, maxK int) error {
	scaler := preprocess.NewStandardScaler(a.cfg.Model.Features)
	scaled, err := scaler.FitTransform(rows)
	if err != nil {
		return err
	}
	projected, err := reduce.New(a.cfg.Model.PCA.Components).FitTransform(scaled)
	if err != nil {
		return err
	}

	wcss, err := kmeans.WCSS(projected, maxK,
		kmeans.WithMaxIterations(a.cfg.Model.KMeans.MaxIterations),
		kmeans.WithSeed(a.cfg.Model.KMeans.Seed))
	if err != nil {
		return err
	}
	for i, v := range wcss {
		fmt.Printf("k=%d\twcss=%.4f\n", i+1, v)
	}
	return nil
}

func loadCSV(path, idColumn string) ([]dataset.Row, error) {
	var opts []dataset.CSVOption
	if idColumn != "" {
		opts = append(opts, dataset.WithIDColumn(idColumn))
	}
	reader, err := dataset.NewCSVReader(path, opts...)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return reader.ReadAll()
}
