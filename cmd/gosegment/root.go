package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/seglab/gosegment/pkg/config"
	"github.com/seglab/gosegment/pkg/notify"
	"github.com/seglab/gosegment/pkg/pipeline"
	"github.com/seglab/gosegment/pkg/registry"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gosegment",
		Short:         "Customer segmentation pipeline",
		Long:          "Train clustering models on customer data, serve segment predictions and monitor deployed models for drift.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	root.AddCommand(newTrainCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newMonitorCmd())
	return root
}

// app bundles the wired components every subcommand needs.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	reg    *registry.Registry
	engine *pipeline.Engine
}

func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	reg, err := registry.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.SMTP.Enabled {
		notifier = notify.NewSMTP(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Password)
	}

	engine := pipeline.New(reg, pipeline.Params{
		Features:      cfg.Model.Features,
		Clusters:      cfg.Model.KMeans.Clusters,
		MaxIterations: cfg.Model.KMeans.MaxIterations,
		Seed:          cfg.Model.KMeans.Seed,
		Eps:           cfg.Model.DBSCAN.Eps,
		MinSamples:    cfg.Model.DBSCAN.MinSamples,
		Components:    cfg.Model.PCA.Components,
		DriftAlpha:    cfg.Monitor.DriftThreshold,
	},
		pipeline.WithNotifier(notifier, cfg.Monitor.AlertRecipients),
		pipeline.WithLogger(log),
	)

	return &app{cfg: cfg, log: log, reg: reg, engine: engine}, nil
}

func newLogger(cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level: %w", err)
	}

	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger(), nil
}
