package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhukovvlad/residence-go/cmd/internal/bootstrap"
	"github.com/zhukovvlad/residence-go/cmd/internal/services/importer"
)

const closeTimeout = 30 * time.Second

type importOutput struct {
	Command    string                 `json:"command"`
	RunID      string                 `json:"run_id"`
	DurationMS int64                  `json:"duration_ms"`
	Result     *importer.ImportResult `json:"result"`
}

func newImportCmd() *cobra.Command {
	var (
		tenantID    string
		operatorID  string
		skipInvalid bool
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Validate and commit a csv/xlsx file into the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			pipeline, err := bootstrap.Build(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				if err := pipeline.Close(ctx); err != nil {
					logger.Errorf("close pipeline: %v", err)
				}
			}()

			stderr := cmd.ErrOrStderr()
			start := time.Now()
			out, err := pipeline.Service.Run(cmd.Context(), importer.RunRequest{
				FileName:    filepath.Base(args[0]),
				Data:        data,
				TenantID:    tenantID,
				OperatorID:  operatorID,
				SkipInvalid: skipInvalid,
			}, func(p importer.BatchProgress) {
				fmt.Fprintf(stderr, "group %d/%d  %3d%%  imported %d/%d\n",
					p.CurrentGroup, p.TotalGroups, p.Percentage, p.ImportedCount, p.TotalCount)
			})
			if errors.Is(err, importer.ErrInvalidRows) {
				printReport(stderr, validateOutput{
					File:         args[0],
					TotalRows:    out.Report.TotalRows,
					ValidCount:   out.Report.ValidCount,
					InvalidCount: out.Report.InvalidCount,
					Errors:       out.Report.Diagnostics(),
				})
				return fmt.Errorf("%w (rerun with --skip-invalid to import the valid rows)", err)
			}
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), importOutput{
				Command:    "import",
				RunID:      out.RunID,
				DurationMS: time.Since(start).Milliseconds(),
				Result:     out.Result,
			})
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id (required)")
	cmd.Flags().StringVar(&operatorID, "operator", "importctl", "Operator id recorded on the run")
	cmd.Flags().BoolVar(&skipInvalid, "skip-invalid", false, "Commit valid rows even if some rows are invalid")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
