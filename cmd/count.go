package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kayz/promptforge/internal/tokenizer"
)

var countRole string

var countCmd = &cobra.Command{
	Use:   "count [file]",
	Short: "Estimate the token cost of a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		counter := tokenizer.NewEstimator(cfg.CharsPerToken)
		n, err := counter.Count(cmd.Context(), tokenizer.Payload{
			Role:    countRole,
			Content: string(data),
		})
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

func init() {
	countCmd.Flags().StringVar(&countRole, "role", "user", "Role the content is counted as")
	rootCmd.AddCommand(countCmd)
}
