package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/repository"
	"github.com/parleyhq/parley/internal/service"
)

func ReprocessCmd() *cobra.Command {
	var (
		projectID   string
		documentIDs []string
	)

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Queue documents for reprocessing",
		Long:  "Reset completed or failed documents to pending so the pipeline picks them up again",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runReprocess(projectID, documentIDs, outputFormat)
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Limit reprocessing to a single project")
	cmd.Flags().StringSliceVar(&documentIDs, "document", nil, "Document IDs to reprocess (repeatable)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runReprocess(projectID string, documentIDs []string, outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	docRepo := repository.NewDocumentRepository(pool)
	txRunner := repository.NewTxRunner(pool)
	reprocessSvc := service.NewReprocessService(docRepo, txRunner)

	result, err := reprocessSvc.Reprocess(ctx, service.ReprocessInput{
		ProjectID:   projectID,
		DocumentIDs: documentIDs,
	})
	if err != nil {
		return fmt.Errorf("failed to reprocess documents: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"documents_queued": result.DocumentsQueued,
			"chunks_deleted":   result.ChunksDeleted,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Queued %d document(s) for reprocessing (%d chunk(s) deleted)\n", result.DocumentsQueued, result.ChunksDeleted)
	}

	return nil
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
