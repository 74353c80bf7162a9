package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"knowbot/src/core/knowledge"
	"knowbot/src/infrastructure/log"
)

var initIndexReset bool

var initIndexCmd = &cobra.Command{
	Use:   "init-index",
	Short: "Create the fragment collection, optionally dropping it first",
	RunE:  runInitIndex,
}

func init() {
	initIndexCmd.Flags().BoolVar(&initIndexReset, "reset", false, "drop the collection before creating it")
	rootCmd.AddCommand(initIndexCmd)
	settingDefaultConfig()
}

func runInitIndex(cmd *cobra.Command, args []string) error {
	store, err := newFragmentStore()
	if err != nil {
		return fmt.Errorf("failed to initialize fragment store: %v", err)
	}

	collection := viper.GetString("search.collection")
	catalog := knowledge.NewCatalog(store, collection)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if initIndexReset {
		cleared, err := catalog.Reset(ctx)
		if err != nil {
			return fmt.Errorf("failed to reset collection: %v", err)
		}
		log.Info("collection reset", "collection", collection, "cleared", cleared)
		return nil
	}

	created, err := catalog.Ensure(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure collection: %v", err)
	}
	if created {
		log.Info("collection created", "collection", collection)
	} else {
		log.Info("collection already exists", "collection", collection)
	}
	return nil
}
