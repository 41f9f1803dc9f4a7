package batchrag

import (
	"fmt"

	"github.com/spf13/cobra"

	"batchrag/pkg/logger"
	"batchrag/pkg/tui"
)

var chatTopK int

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the indexed newsletter in the terminal",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().IntVar(&chatTopK, "top-k", 0, "Documents to retrieve per question (0 = config default)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// log to file only, the terminal belongs to the chat view
	log, err := logger.NewFile(cfg.Log.Dir, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	client, err := newLLMClient(log)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, client, log)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	topK := cfg.Retrieval.TopK
	if chatTopK > 0 {
		topK = chatTopK
	}

	return tui.Run(newEngine(store, client, log), topK)
}
