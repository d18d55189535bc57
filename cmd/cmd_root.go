// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

// config holds every flag, overridable by MIREPORTEC_* variables and by the
// --config file.
var config = viper.New()

var rootCmd = &cobra.Command{
	Use:   "mireportec",
	Short: "reportes ciudadanos para municipalidades costarricenses",
	Long: `
mireportec recibe reportes ciudadanos sobre problemas de infraestructura
(baches, alumbrado, basura) y los asigna a la municipalidad responsable a
partir de sus coordenadas.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return loadConfig()
	},
}

var Version = "dev"

func loadConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	config.SetEnvPrefix("MIREPORTEC")
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()

	if path := config.GetString("config"); path != "" {
		config.SetConfigFile(path)

		if err := config.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}

		log.Printf("using config file %s", config.ConfigFileUsed())
	}

	return nil
}

// bindFlags exposes the flags of cmd through config under their own names.
func bindFlags(cmd *cobra.Command, persistent bool) {
	flags := cmd.Flags()
	if persistent {
		flags = cmd.PersistentFlags()
	}

	if err := config.BindPFlags(flags); err != nil {
		log.Fatalf("binding flags of %s: %v", cmd.Name(), err)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Archivo de configuración (yaml, toml o json)")
	flags.String("db-path", "db", "Directorio base donde almacenar el estado")
	flags.String("registry", "", "Registro de municipalidades en JSON. Por defecto el incluido en el binario")
	flags.String("geocoder", geocoderNominatim, "Proveedor de geocodificación inversa: nominatim o google")
	flags.String("nominatim-url", "", "URL base de la instancia de Nominatim")
	flags.Duration("geocode-timeout", 10*time.Second, "Tiempo máximo para geocodificar una coordenada")
	flags.Bool("trace-http", false, "Display HTTP requests-responses")
	flags.Bool("trace-http-body", false, "Display HTTP requests-responses bodies")
	bindFlags(rootCmd, true)
}

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
