package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhukovvlad/residence-go/cmd/internal/config"
	"github.com/zhukovvlad/residence-go/cmd/pkg/logging"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "importctl",
		Short:        "Operator tools for bulk student imports",
		SilenceUsage: true,
	}
	cmd.AddCommand(newTemplateCmd(), newValidateCmd(), newImportCmd(), newTokenCmd())
	return cmd
}

// loadConfig читает .env (если есть) и YAML-конфиг, не завершая процесс при ошибке.
// Логи уходят в stderr: stdout занят JSON-выводом команд.
func loadConfig() (*config.Config, *logging.Logger, error) {
	logging.SetOutput(os.Stderr)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, err
	}
	cfg, err := config.Load(config.Path())
	if err != nil {
		return nil, nil, err
	}
	if err := logging.Configure(cfg.LogLevel, cfg.Debug()); err != nil {
		return nil, nil, err
	}
	return cfg, logging.GetLogger(), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
