// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/mireportec/mireportec/report"
	"github.com/mireportec/mireportec/utils/textutils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Administración de los reportes almacenados",
}

// abbrev cuts s to n runes.
func abbrev(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")

	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n-1]) + "…"
}

func printReports(reports []*report.Report) {
	a, b, c, d, e := strings.Repeat("─", 13), strings.Repeat("─", 10),
		strings.Repeat("─", 11), strings.Repeat("─", 24), strings.Repeat("─", 40)

	fmt.Printf("╭─%-13s─┬─%-10s─┬─%-11s─┬─%-24s─┬─%-40s─╮\n", a, b, c, d, e)
	fmt.Printf("│ %-13s │ %-10s │ %-11s │ %-24s │ %-40s │\n", "Id", "Fecha", "Estado", "Municipalidad", "Descripción")
	fmt.Printf("├─%-13s─┼─%-10s─┼─%-11s─┼─%-24s─┼─%-40s─┤\n", a, b, c, d, e)

	for _, r := range reports {
		muni := "-"
		if r.Municipality != nil {
			muni = r.Municipality.Name
		}

		fmt.Printf("│ %-13s │ %-10s │ %-11s │ %-24s │ %-40s │\n",
			abbrev(r.ID, 13),
			r.CreatedAt.Format("2006-01-02"),
			abbrev(string(r.Status), 11),
			abbrev(muni, 24),
			abbrev(r.Description, 40),
		)
	}

	fmt.Printf("╰─%-13s─┴─%-10s─┴─%-11s─┴─%-24s─┴─%-40s─╯\n", a, b, c, d, e)
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lista los reportes, los más recientes primero",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		a, err := newStoreApp()
		if err != nil {
			return err
		}
		defer a.Close()

		reports, err := a.reports.List()
		if err != nil {
			return err
		}

		printReports(reports)

		return nil
	},
}

var searchFilters report.Filters

var reportsSearchCmd = &cobra.Command{
	Use:   "search [término]",
	Short: "Busca reportes por texto, ubicación o municipalidad",
	Long: `Busca reportes cuyo id, descripción, dirección o etiquetas contengan el
término, sin distinguir mayúsculas. Los acentos sí cuentan: "limon" no
encuentra "Limón". --location restringe por provincia o dirección y
--municipality por nombre de la municipalidad asignada.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if len(args) > 0 {
			searchFilters.SearchTerm = args[0]
		}

		a, err := newStoreApp()
		if err != nil {
			return err
		}
		defer a.Close()

		reports, err := a.reports.Search(searchFilters)
		if err != nil {
			return err
		}

		printReports(reports)

		return nil
	},
}

var reassignOnlyMissing bool

var reportsReassignCmd = &cobra.Command{
	Use:   "reassign",
	Short: "Vuelve a asignar municipalidad a los reportes almacenados",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a, err := newApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.reports.Repository().Count()
		if err != nil {
			return err
		}

		var bar *progressbar.ProgressBar
		if isatty.IsTerminal(os.Stderr.Fd()) {
			bar = progressbar.NewOptions(n,
				progressbar.OptionSetDescription("Reassigning"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}

		changed, err := a.reports.Reassign(ctx, reassignOnlyMissing, func() {
			if bar != nil {
				_ = bar.Add(1)
			}
		})
		if bar != nil {
			_ = bar.Finish()
		}

		log.Printf("%s of %s reports changed municipality",
			textutils.FormatInt(int64(changed)), textutils.FormatInt(int64(n)))

		return err
	},
}

var reportsExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Exporta todos los reportes a un archivo JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		a, err := newStoreApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := report.ExportToJSON(a.reports.Repository(), args[0])
		if err != nil {
			return err
		}

		log.Printf("exported %s reports to %s", textutils.FormatInt(int64(n)), args[0])

		return nil
	},
}

var reportsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Importa reportes desde un archivo JSON, reemplazando los de igual id",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		a, err := newStoreApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := report.ImportFromJSON(a.reports.Repository(), args[0])
		if err != nil {
			return err
		}

		log.Printf("imported %s reports from %s", textutils.FormatInt(int64(n)), args[0])

		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsSearchCmd)
	reportsCmd.AddCommand(reportsReassignCmd)
	reportsCmd.AddCommand(reportsExportCmd)
	reportsCmd.AddCommand(reportsImportCmd)

	reportsSearchCmd.Flags().StringVar(
		&searchFilters.Location,
		"location",
		"",
		"Texto a buscar en la provincia de la municipalidad o en la dirección del reporte",
	)
	reportsSearchCmd.Flags().StringVar(
		&searchFilters.Municipality,
		"municipality",
		"",
		"Texto a buscar en el nombre de la municipalidad asignada",
	)
	reportsReassignCmd.Flags().BoolVar(
		&reassignOnlyMissing,
		"only-missing",
		false,
		"Solo procesa los reportes sin municipalidad",
	)
}
