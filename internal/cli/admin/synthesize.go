package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/openai"
	"github.com/parleyhq/parley/internal/repository"
	"github.com/parleyhq/parley/internal/service"
)

func SynthesizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synthesize <project-id>",
		Short: "Generate the next audience synthesis for a project",
		Long:  "Analyze conversations since the last synthesis version and commit the next version",
		Args:  cobra.ExactArgs(1),
		RunE:  runSynthesize,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	projectID := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("PARLEY_OPENAI_API_KEY is required to generate a synthesis")
	}

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	synthRepo := repository.NewSynthesisRepository(pool)
	convRepo := repository.NewConversationRepository(pool)
	docRepo := repository.NewDocumentRepository(pool)
	analyzer := openai.NewAnalyzer(cfg.OpenAIAPIKey, "")

	synthesisSvc := service.NewSynthesisService(synthRepo, convRepo, docRepo, analyzer, service.SynthesisThresholds{
		MinConversations: cfg.SynthesisMinConversations,
		MinMessages:      cfg.SynthesisMinMessages,
	})

	synthesis, err := synthesisSvc.Generate(ctx, projectID)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			fmt.Printf("Not enough new activity to synthesize: %v\n", err)
			return nil
		}
		return fmt.Errorf("failed to generate synthesis: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(synthesis, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Synthesis version %d created for project %s\n", synthesis.Version, projectID)
		fmt.Printf("  conversations analyzed: %d\n", synthesis.ConversationCount)
		fmt.Printf("  covers: %s to %s\n", synthesis.CoveredFrom.Format("2006-01-02 15:04:05"), synthesis.CoveredTo.Format("2006-01-02 15:04:05"))
		fmt.Printf("  overview: %s\n", synthesis.Overview)
	}

	return nil
}
