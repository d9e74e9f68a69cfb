package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhukovvlad/residence-go/cmd/internal/services/importer"
)

type validateOutput struct {
	File          string                     `json:"file"`
	TotalRows     int                        `json:"total_rows"`
	ValidCount    int                        `json:"valid_count"`
	InvalidCount  int                        `json:"invalid_count"`
	Errors        []importer.ValidationError `json:"errors"`
	Unconvertible []importer.ImportError     `json:"unconvertible,omitempty"`
}

func newValidateCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a csv/xlsx file without writing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			validator := importer.NewFileValidator(time.Now)
			report, err := validator.ValidateFile(filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			_, unconvertible := validator.Convert(report)

			out := validateOutput{
				File:          args[0],
				TotalRows:     report.TotalRows,
				ValidCount:    report.ValidCount,
				InvalidCount:  report.InvalidCount,
				Errors:        report.Diagnostics(),
				Unconvertible: unconvertible,
			}
			if out.Errors == nil {
				out.Errors = []importer.ValidationError{}
			}
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), out)
			}

			if !report.IsClean() {
				return fmt.Errorf("%d of %d rows are invalid", report.InvalidCount, report.TotalRows)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func printReport(w io.Writer, out validateOutput) {
	fmt.Fprintf(w, "%s: %d rows, %d valid, %d invalid\n", out.File, out.TotalRows, out.ValidCount, out.InvalidCount)
	for _, e := range out.Errors {
		fmt.Fprintf(w, "  row %d  %-16s %s\n", e.Row, e.Field, e.Message)
	}
	for _, e := range out.Unconvertible {
		fmt.Fprintf(w, "  %s  %s\n", e.IDNumber, e.Error)
	}
}
