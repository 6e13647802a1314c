package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kayz/promptforge/internal/audit"
	"github.com/kayz/promptforge/internal/inspect"
	"github.com/kayz/promptforge/internal/tokenizer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assembly inspection service",
	Long: `Serves one-shot assembly requests over HTTP and streams assembly audit
records to websocket trace subscribers. Expired audit files are pruned on a
daily schedule.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		counter := tokenizer.NewCachedCounter(tokenizer.NewEstimator(cfg.CharsPerToken))
		auditor := audit.NewWriter(cfg.Audit.Enabled, cfg.Audit.Dir, cfg.Audit.FilePrefix, cfg.Audit.RetentionDays)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return inspect.NewServer(cfg, counter, auditor).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
