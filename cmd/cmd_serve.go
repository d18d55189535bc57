// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/mireportec/mireportec/api"
	"github.com/mireportec/mireportec/metrics"
	"github.com/mireportec/mireportec/report"
	"github.com/mireportec/mireportec/utils/textutils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expone la API HTTP de reportes",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		a, err := newApp(ctx, metrics.New(reg))
		if err != nil {
			return err
		}
		defer a.Close()

		if seed := config.GetString("seed"); seed != "" {
			seeded, n, err := report.SeedIfEmpty(a.reports.Repository(), seed)
			if err != nil {
				return fmt.Errorf("seeding database: %w", err)
			}

			if seeded {
				log.Printf("seeded %s reports from %s", textutils.FormatInt(int64(n)), seed)
			}
		}

		log.Printf("%d municipalities loaded", a.registry.Len())

		server := api.NewServer(a.reports, a.assigner, api.Options{
			RequestsPerSecond: config.GetInt("rps"),
			Gatherer:          reg,
		})

		return server.Run(ctx, config.GetString("listen"))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "Dirección donde escuchar")
	serveCmd.Flags().Int("rps", 20, "Máximo de solicitudes por segundo a la API, 0 para no limitar")
	serveCmd.Flags().String("seed", "", "Archivo JSON con reportes a importar si la base está vacía")
	bindFlags(serveCmd, false)
}
