package main

import (
	"github.com/spf13/cobra"

	"github.com/seglab/gosegment/internal/api"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the segmentation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			if a.cfg.Server.APIKey == "" {
				a.log.Warn().Msg("no API key configured, the API is open")
			}
			server := api.NewServer(a.cfg.Server, a.engine, a.reg, a.log)
			return server.Run()
		},
	}
}
