package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"knowbot/src/core/knowledge"
	"knowbot/src/infrastructure/log"
)

var reindexOwnerID int64

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed and rewrite one owner's fragments",
	Long: `The reindex command scans all of an owner's fragments out of the
collection, embeds their text again, and writes them back. Run it after
switching embedding models.`,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().Int64Var(&reindexOwnerID, "owner", 0, "owner id to reindex (required)")
	reindexCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(reindexCmd)
	settingDefaultConfig()
}

func runReindex(cmd *cobra.Command, args []string) error {
	store, err := newFragmentStore()
	if err != nil {
		return fmt.Errorf("failed to initialize fragment store: %v", err)
	}

	e5, err := newEmbedder()
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	collection := viper.GetString("search.collection")
	ctx := context.Background()

	fragments, err := store.FragmentsByOwner(ctx, collection, reindexOwnerID)
	if err != nil {
		return fmt.Errorf("failed to scan fragments: %v", err)
	}
	if len(fragments) == 0 {
		log.Info("nothing to reindex", "owner_id", reindexOwnerID)
		return nil
	}

	// Group by document so each document is replaced atomically from the
	// user's point of view: delete old fragments, then write new ones.
	byDocument := make(map[string][]knowledge.Fragment)
	for _, f := range fragments {
		byDocument[f.DocumentID] = append(byDocument[f.DocumentID], f)
	}

	bar := progressbar.Default(int64(len(fragments)), "reindexing")
	for documentID, docFragments := range byDocument {
		texts := make([]string, len(docFragments))
		for i, f := range docFragments {
			texts[i] = f.Text
		}

		vectors, err := e5.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed document %s: %v", documentID, err)
		}
		if len(vectors) != len(docFragments) {
			return fmt.Errorf("embedder returned %d vectors for %d fragments", len(vectors), len(docFragments))
		}

		indexed := make([]knowledge.IndexedFragment, len(docFragments))
		for i, f := range docFragments {
			indexed[i] = knowledge.IndexedFragment{Fragment: f, Vector: vectors[i]}
		}

		if err := store.DeleteByDocument(ctx, collection, reindexOwnerID, documentID); err != nil {
			return fmt.Errorf("failed to delete document %s: %v", documentID, err)
		}
		if err := store.AddFragments(ctx, collection, indexed); err != nil {
			return fmt.Errorf("failed to rewrite document %s: %v", documentID, err)
		}

		bar.Add(len(docFragments))
	}

	log.Info("reindex finished",
		"owner_id", reindexOwnerID,
		"documents", len(byDocument),
		"fragments", len(fragments))
	return nil
}
