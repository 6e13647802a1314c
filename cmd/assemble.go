package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kayz/promptforge/internal/adapter"
	"github.com/kayz/promptforge/internal/assembly"
	"github.com/kayz/promptforge/internal/audit"
	"github.com/kayz/promptforge/internal/chatlog"
	"github.com/kayz/promptforge/internal/config"
	"github.com/kayz/promptforge/internal/logger"
	"github.com/kayz/promptforge/internal/prompt"
	"github.com/kayz/promptforge/internal/tokenizer"
)

var (
	characterPath string
	mainPrompt    string
	personaText   string
	requestKind   string
	platform      string
	channelID     string
	userID        string
	historyLimit  int
	groupChat     bool
	modelName     string
	emitRequest   bool
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Assemble the final message payload for one generation request",
	Long: `Reads the configured conversation log and character card, merges every
prompt source under the token budget, and prints the resulting ordered
payload as JSON. With --request, the payload is additionally mapped through
the parameter adapter for the given model.`,
	RunE: runAssemble,
}

func init() {
	assembleCmd.Flags().StringVar(&characterPath, "character", "", "Path to a YAML character card")
	assembleCmd.Flags().StringVar(&mainPrompt, "main", "", "Main instruction prompt content")
	assembleCmd.Flags().StringVar(&personaText, "persona", "", "User persona description")
	assembleCmd.Flags().StringVar(&requestKind, "kind", "normal", "Request kind: normal, impersonate, quiet, continue")
	assembleCmd.Flags().StringVar(&platform, "platform", "cli", "Conversation platform key")
	assembleCmd.Flags().StringVar(&channelID, "channel", "default", "Conversation channel key")
	assembleCmd.Flags().StringVar(&userID, "user", "default", "Conversation user key")
	assembleCmd.Flags().IntVar(&historyLimit, "history-limit", 0, "Maximum turns to load (0 = all)")
	assembleCmd.Flags().BoolVar(&groupChat, "group", false, "Treat the conversation as a group chat")
	assembleCmd.Flags().StringVar(&modelName, "model", "", "Model name for the parameter adapter")
	assembleCmd.Flags().BoolVar(&emitRequest, "request", false, "Emit the provider request body instead of the raw payload")
	rootCmd.AddCommand(assembleCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func runAssemble(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	counter := tokenizer.NewCachedCounter(tokenizer.NewEstimator(cfg.CharsPerToken))

	collection := cfg.PromptCollection()
	var slots []*prompt.Prompt
	if mainPrompt != "" {
		slots = append(slots, &prompt.Prompt{
			Identifier: prompt.IDMain,
			Role:       prompt.RoleSystem,
			Content:    mainPrompt,
			Position:   prompt.PositionRelative,
		})
	}
	if personaText != "" {
		slots = append(slots, &prompt.Prompt{
			Identifier: prompt.IDPersonaDescription,
			Role:       prompt.RoleSystem,
			Content:    personaText,
			Position:   prompt.PositionRelative,
		})
	}

	var examples [][]chatlog.Turn
	if characterPath != "" {
		card, err := config.LoadCharacter(characterPath)
		if err != nil {
			return err
		}
		slots = append(slots, card.SlotPrompts()...)
		examples = card.ExampleBlocks()

		collection = prompt.Merge(collection, slots)
		prompt.ApplyCharacterOverrides(collection, card.Overrides(), card.Disabled())
		prompt.ApplyDisabled(collection, card.Disabled())
	} else {
		collection = prompt.Merge(collection, slots)
	}

	store, err := chatlog.Open(cfg.ChatDB)
	if err != nil {
		return err
	}
	defer store.Close()

	conv, err := store.GetOrCreateConversation(platform, channelID, userID)
	if err != nil {
		return err
	}
	turns, err := store.LoadTurns(conv.ID, historyLimit)
	if err != nil {
		return err
	}

	asm := assembly.NewAssembler(counter, cfg.Assembly())
	chat, report, err := asm.Assemble(cmd.Context(), assembly.Request{
		Kind:     assembly.Kind(requestKind),
		Prompts:  collection,
		Turns:    turns,
		Examples: examples,
		Group:    groupChat,
	})
	if err != nil {
		logger.Error("assembly failed: %v", err)
		return fmt.Errorf("assemble: %w", err)
	}

	auditor := audit.NewWriter(cfg.Audit.Enabled, cfg.Audit.Dir, cfg.Audit.FilePrefix, cfg.Audit.RetentionDays)
	digest, _ := json.Marshal(map[string]any{"platform": platform, "channel": channelID, "user": userID, "kind": requestKind})
	if err := auditor.Write(audit.NewRecord(report, modelName, digest)); err != nil {
		logger.Warn("audit write failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if emitRequest {
		ad := adapter.ForModel(modelName)
		body, err := ad.BuildRequest(chat, adapter.GenerationSettings{
			Model:     modelName,
			MaxTokens: cfg.ReservedResponse,
		})
		if err != nil {
			return err
		}
		logger.Info("built %s request with %d messages, %d tokens unspent", ad.Name(), report.Messages, report.RemainingBudget)
		return enc.Encode(body)
	}

	logger.Info("assembled %d messages, %d tokens unspent", report.Messages, report.RemainingBudget)
	return enc.Encode(chat)
}
