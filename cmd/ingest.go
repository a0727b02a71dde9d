package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/candidate-ranker/internal/ai"
	"github.com/spigell/candidate-ranker/internal/ingest"
	"github.com/spigell/candidate-ranker/internal/lexicon"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Upsert candidate profiles from a JSON lines file into the configured index",
	Run: func(cmd *cobra.Command, _ []string) {
		runIngest(cmd)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringP("file", "f", "", "profiles as JSON lines: {id, vector?, metadata}")
	ingestCmd.Flags().Int("workers", 4, "concurrent embedding requests")
	ingestCmd.MarkFlagRequired("file")
}

func runIngest(cmd *cobra.Command) {
	ctx := context.Background()
	log, config := setup()

	path, _ := cmd.Flags().GetString("file")
	workers, _ := cmd.Flags().GetInt("workers")

	f, err := os.Open(path)
	if err != nil {
		log.Fatal("opening profiles", zap.Error(err))
	}
	lines, err := ingest.Read(f)
	f.Close()
	if err != nil {
		log.Fatal("reading profiles", zap.Error(err))
	}

	lex, err := lexicon.Load(config.Ranking.LexiconFile)
	if err != nil {
		log.Fatal("loading lexicon", zap.Error(err))
	}

	// The embedder is only needed when some profile arrives without a vector.
	var embedder ai.Embedder
	for _, line := range lines {
		if len(line.Vector) == 0 {
			prov, err := newProviders(ctx, config, log)
			if err != nil {
				log.Fatal("building ai providers", zap.Error(err))
			}
			embedder = prov.document
			break
		}
	}

	index, err := newIndex(config.Retrieval, log)
	if err != nil {
		log.Fatal("opening the index", zap.Error(err))
	}
	defer index.Close()

	n, err := ingest.New(index, embedder, lex, workers, log).Run(ctx, config.Retrieval.Namespace, lines)
	if err != nil {
		log.Fatal("ingesting profiles", zap.Error(err))
	}

	log.Info("done", zap.Int("profiles", n), zap.String("file", path))
}
