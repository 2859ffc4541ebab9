package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/seglab/gosegment/pkg/registry"
)

func newMonitorCmd() *cobra.Command {
	var (
		kind          string
		currentPath   string
		referencePath string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Check a deployed model for distribution drift",
		Long:  "Compare a current batch against a reference batch under the latest stored model. Detected drift is reported and alerted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}

			if referencePath == "" {
				referencePath = a.cfg.Dataset.Path
			}
			current, err := loadCSV(currentPath, a.cfg.Dataset.IDColumn)
			if err != nil {
				return err
			}
			reference, err := loadCSV(referencePath, a.cfg.Dataset.IDColumn)
			if err != nil {
				return err
			}

			report, err := a.engine.CheckHealth(cmd.Context(), kind, current, reference)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.Drift {
				a.log.Warn().Str("kind", kind).Msg("drift detected")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", registry.KindKMeans, "model kind to check")
	cmd.Flags().StringVar(&currentPath, "current", "", "CSV batch to check for drift")
	cmd.Flags().StringVar(&referencePath, "reference", "", "reference CSV batch (default: dataset.path from config)")
	cmd.MarkFlagRequired("current")
	return cmd
}
