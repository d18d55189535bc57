// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/mireportec/mireportec/utils/textutils"
	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

var debugNormalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Muestra cómo se normalizan los nombres geográficos",
	Long: `Lee un texto por línea, e imprime en stdout el texto seguido de su forma
normalizada para comparar y de su clave.

$ echo "San José" | mireportec debug normalize
San José	san jose	SAN_JOSE
	`,
	Run: func(_ *cobra.Command, _ []string) {
		input := os.Stdin
		if isatty.IsTerminal(input.Fd()) {
			fmt.Fprintln(os.Stderr, "Ingrese textos a normalizar, uno por línea…")
		}

		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			s := scanner.Text()
			fmt.Printf("%s\t%s\t%s\n", s, textutils.LowerASCIIFolding(s), textutils.KeyFolding(s))
		}

		if err := scanner.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", err)
			os.Exit(1)
		}
	},
}

func parseLatLng(line string) (float64, float64, error) {
	lat, lng, ok := strings.Cut(line, ",")
	if !ok {
		return 0, 0, fmt.Errorf("expected lat,lng: %q", line)
	}

	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude: %w", err)
	}

	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude: %w", err)
	}

	return la, ln, nil
}

var debugGeocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Geocodifica coordenadas y muestra la municipalidad asignada",
	Long: `Lee una coordenada "lat,lng" por línea, e imprime en stdout la coordenada
seguida de las etiquetas geográficas, el nivel de coincidencia y la
municipalidad asignada.

$ echo 9.9346,-84.0806 | mireportec debug geocode
9.9346,-84.0806		{"municipality":{"name":"Municipalidad de San José",…},"tier":"canton"}
	`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		assigner, err := newAssigner(cmd.Context(), nil)
		if err != nil {
			return err
		}

		input := os.Stdin
		if isatty.IsTerminal(input.Fd()) {
			fmt.Fprintln(os.Stderr, "Ingrese coordenadas lat,lng a geocodificar, una por línea…")
		}

		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			lat, lng, err := parseLatLng(line)
			if err != nil {
				fmt.Printf("%s\t%q\n", line, err)

				continue
			}

			if s, err := json.Marshal(assigner.Explain(cmd.Context(), lat, lng)); err == nil {
				fmt.Printf("%s\t\t%s\n", line, s)
			} else {
				log.Fatal(err)
			}
		}

		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugNormalizeCmd)
	debugCmd.AddCommand(debugGeocodeCmd)
}
