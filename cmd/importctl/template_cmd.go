package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhukovvlad/residence-go/cmd/internal/services/importer"
)

func newTemplateCmd() *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the import template (csv or xlsx)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var buf bytes.Buffer
			switch format {
			case importer.FormatCSV:
				if err := importer.RenderTemplateCSV(&buf); err != nil {
					return err
				}
			case importer.FormatXLSX:
				if err := importer.RenderTemplateXLSX(&buf); err != nil {
					return err
				}
			default:
				return fmt.Errorf("invalid --format %q: use csv or xlsx", format)
			}

			if out == "" || out == "-" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write template: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "template written to %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", importer.FormatCSV, "Template format: csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}
