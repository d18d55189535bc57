// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mireportec/mireportec/geocoding"
	"github.com/mireportec/mireportec/municipality"
	"github.com/mireportec/mireportec/utils/textutils"
	"github.com/spf13/cobra"
)

var municipalitiesCmd = &cobra.Command{
	Use:   "municipalities",
	Short: "Consultas sobre el registro de municipalidades",
}

var listProvince string

var municipalitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lista las municipalidades del registro",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		registry, err := municipality.Open(config.GetString("registry"))
		if err != nil {
			return err
		}

		a, b, c, d := strings.Repeat("─", 10), strings.Repeat("─", 20),
			strings.Repeat("─", 16), strings.Repeat("─", 44)

		fmt.Printf("╭─%-10s─┬─%-20s─┬─%-16s─┬─%-44s─╮\n", a, b, c, d)
		fmt.Printf("│ %-10s │ %-20s │ %-16s │ %-44s │\n", "Provincia", "Cantón", "Distrito", "Nombre")
		fmt.Printf("├─%-10s─┼─%-20s─┼─%-16s─┼─%-44s─┤\n", a, b, c, d)

		want := textutils.LowerASCIIFolding(listProvince)
		for _, r := range registry.All() {
			if want != "" && textutils.LowerASCIIFolding(r.Province) != want {
				continue
			}

			fmt.Printf("│ %-10s │ %-20s │ %-16s │ %-44s │\n",
				abbrev(r.Province, 10), abbrev(r.Canton, 20), abbrev(r.District, 16), abbrev(r.Name, 44))
		}

		fmt.Printf("╰─%-10s─┴─%-20s─┴─%-16s─┴─%-44s─╯\n", a, b, c, d)

		return nil
	},
}

var resolveDisplayName string

var municipalitiesResolveCmd = &cobra.Command{
	Use:   "resolve <provincia> <cantón> [distrito]",
	Short: "Resuelve una municipalidad a partir de etiquetas geográficas",
	Long: `Aplica la resolución de municipalidades sin consultar al geocodificador.

$ mireportec municipalities resolve Alajuela "San Ramón" "Peñas Blancas"
{"municipality":{"name":"Concejo Municipal de Distrito de Peñas Blancas",…},"tier":"district"}
`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(_ *cobra.Command, args []string) error {
		registry, err := municipality.Open(config.GetString("registry"))
		if err != nil {
			return err
		}

		geo := geocoding.GeoInfo{
			Province:    args[0],
			Canton:      args[1],
			DisplayName: resolveDisplayName,
		}
		if len(args) > 2 {
			geo.District = args[2]
		}

		rec, tier := registry.ResolveTier(geo)

		return printJSON(municipality.Assignment{Municipality: rec, GeoInfo: geo, Tier: tier})
	},
}

var municipalitiesAssignCmd = &cobra.Command{
	Use:   "assign <lat> <lng>",
	Short: "Geocodifica una coordenada y le asigna municipalidad",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid latitude %q: %w", args[0], err)
		}

		lng, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid longitude %q: %w", args[1], err)
		}

		assigner, err := newAssigner(cmd.Context(), nil)
		if err != nil {
			return err
		}

		return printJSON(assigner.Explain(cmd.Context(), lat, lng))
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(municipalitiesCmd)
	municipalitiesCmd.AddCommand(municipalitiesListCmd)
	municipalitiesCmd.AddCommand(municipalitiesResolveCmd)
	municipalitiesCmd.AddCommand(municipalitiesAssignCmd)

	municipalitiesListCmd.Flags().StringVar(
		&listProvince,
		"province",
		"",
		"Solo las municipalidades de esta provincia",
	)
	municipalitiesResolveCmd.Flags().StringVar(
		&resolveDisplayName,
		"display-name",
		"",
		"Dirección completa, como la devuelve el geocodificador",
	)
}
