// Package main provides the docqa CLI for indexing documents and asking
// questions about them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jmcarthur/docqa/internal/embedding"
	"github.com/jmcarthur/docqa/internal/evaluation"
	"github.com/jmcarthur/docqa/internal/pipeline"
	"github.com/jmcarthur/docqa/internal/qa"
	"github.com/jmcarthur/docqa/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Document question answering over a Qdrant vector index",
	Long: `CLI for the document QA pipeline: chunk and embed documents into
Qdrant, then ask grounded questions about them.

Environment variables:
  QDRANT_HOST        Qdrant hostname (default: localhost)
  QDRANT_PORT        Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION  Collection name (default: legal_documents)
  OPENAI_API_KEY     OpenAI API key (required)
  EMBEDDING_MODEL    Embedding model (default: text-embedding-3-small)
  EMBED_CACHE_PATH   Path to the local embedding cache (optional)`,
}

var (
	docID     int64
	docType   string
	topK      int
	detail    string
	expected  string
	maxChunks int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Chunk, embed, and index a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about an indexed document",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize an indexed document",
	RunE:  runSummarize,
}

var evalCmd = &cobra.Command{
	Use:   "eval <question>",
	Short: "Ask a question and score the pipeline's answer",
	Args:  cobra.ExactArgs(1),
	RunE:  runEval,
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove all indexed chunks of a document",
	RunE:  runPurge,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show chunk statistics for a document",
	RunE:  runStats,
}

func init() {
	ingestCmd.Flags().Int64Var(&docID, "doc-id", 0, "document ID (required)")
	ingestCmd.Flags().StringVar(&docType, "type", "", "document type hint (contract, legal, report, general)")
	_ = ingestCmd.MarkFlagRequired("doc-id")

	askCmd.Flags().Int64Var(&docID, "doc-id", 0, "document ID (required)")
	askCmd.Flags().IntVar(&topK, "top-k", 0, "number of chunks to retrieve (1-10)")
	askCmd.Flags().StringVar(&detail, "detail", "", "answer detail level (brief, detailed, comprehensive)")
	_ = askCmd.MarkFlagRequired("doc-id")

	summarizeCmd.Flags().Int64Var(&docID, "doc-id", 0, "document ID (required)")
	summarizeCmd.Flags().IntVar(&maxChunks, "max-chunks", 0, "chunks to summarize from (default 10)")
	_ = summarizeCmd.MarkFlagRequired("doc-id")

	evalCmd.Flags().Int64Var(&docID, "doc-id", 0, "document ID (required)")
	evalCmd.Flags().StringVar(&expected, "expected", "", "expected answer for semantic comparison")
	_ = evalCmd.MarkFlagRequired("doc-id")

	purgeCmd.Flags().Int64Var(&docID, "doc-id", 0, "document ID (required)")
	_ = purgeCmd.MarkFlagRequired("doc-id")

	statsCmd.Flags().Int64Var(&docID, "doc-id", 0, "document ID (required)")
	_ = statsCmd.MarkFlagRequired("doc-id")

	rootCmd.AddCommand(ingestCmd, askCmd, summarizeCmd, evalCmd, purgeCmd, statsCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newService wires the pipeline from the environment. The returned cleanup
// closes the Qdrant connection and the embedding cache.
func newService() (*pipeline.Service, func(), error) {
	host := getEnv("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnv("QDRANT_COLLECTION", storage.DefaultCollection)

	index, err := storage.NewQdrantIndex(host, port, collection)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to Qdrant at %s:%d: %w", host, port, err)
	}

	client, err := embedding.NewClient()
	if err != nil {
		index.Close()
		return nil, nil, err
	}

	var opts []embedding.Option
	var cache *embedding.Cache
	if path := os.Getenv("EMBED_CACHE_PATH"); path != "" {
		cache, err = embedding.OpenCache(path)
		if err != nil {
			index.Close()
			return nil, nil, fmt.Errorf("open embedding cache: %w", err)
		}
		opts = append(opts, embedding.WithCache(cache))
	}
	provider := embedding.NewProvider(client, opts...)

	model := embedding.ModelID(getEnv("EMBEDDING_MODEL", string(embedding.DefaultModel)))
	generator := qa.NewChatGenerator(client, "")

	service := pipeline.NewService(index, provider, generator, pipeline.Config{Model: model}, slog.Default())
	cleanup := func() {
		if cache != nil {
			cache.Close()
		}
		index.Close()
	}
	return service, cleanup, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	text, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	service, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	count, err := service.Ingest(context.Background(), docID, string(text), docType)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	if count == 0 {
		fmt.Println("Nothing to index: document produced no chunks")
		return nil
	}

	fmt.Printf("Indexed %d chunks for document %d\n", count, docID)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	service, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	answer, err := service.Ask(context.Background(), args[0], docID, qa.AskOptions{
		TopK:        topK,
		DetailLevel: qa.DetailLevel(detail),
	})
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	fmt.Printf("\nConfidence: %s\n", answer.Confidence)
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, source := range answer.Sources {
			fmt.Printf("  %d. (score %.4f) %s\n", i+1, source.Score, source.Text)
		}
	}
	return nil
}

func runSummarize(cmd *cobra.Command, args []string) error {
	service, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := service.Summarize(context.Background(), docID, maxChunks)
	if err != nil {
		return err
	}

	fmt.Println(summary)
	return nil
}

func runEval(cmd *cobra.Command, args []string) error {
	service, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	answer, eval, err := service.Evaluate(context.Background(), args[0], docID, qa.AskOptions{}, expected)
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	fmt.Println()
	fmt.Println(evaluation.Report(eval))
	return nil
}

func runPurge(cmd *cobra.Command, args []string) error {
	service, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := service.Purge(context.Background(), docID); err != nil {
		return err
	}

	fmt.Printf("Purged document %d\n", docID)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	service, cleanup, err := newService()
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := service.Stats(context.Background(), docID)
	if err != nil {
		return err
	}

	fmt.Printf("Document %d\n", docID)
	fmt.Printf("  Chunks: %d\n", stats.ChunkCount)
	fmt.Printf("  Average chunk size: %d chars\n", stats.AvgChunkSize)
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
