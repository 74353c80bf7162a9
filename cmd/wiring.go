package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"

	"knowbot/src/core/knowledge"
	"knowbot/src/infrastructure/integrations/embedder"
	"knowbot/src/storage/elastic"
	"knowbot/src/storage/weaviate"
)

// newFragmentStore builds the configured search backend. Elasticsearch is
// the primary store; Weaviate is the alternate.
func newFragmentStore() (knowledge.FragmentStore, error) {
	switch backend := viper.GetString("search.backend"); backend {
	case "elasticsearch":
		scrollWindow, err := time.ParseDuration(viper.GetString("search.scroll_window"))
		if err != nil {
			return nil, fmt.Errorf("invalid search.scroll_window: %w", err)
		}
		return elastic.NewSDK(elastic.Config{
			URL:          viper.GetString("elasticsearch.url"),
			Username:     viper.GetString("elasticsearch.user"),
			Password:     viper.GetString("elasticsearch.password"),
			CACertPath:   viper.GetString("elasticsearch.ca_cert"),
			PageSize:     viper.GetInt("search.page_size"),
			ScrollWindow: scrollWindow,
			VectorDims:   viper.GetInt("search.vector_dims"),
		})
	case "weaviate":
		wc := weaviateClient.New(weaviateClient.Config{
			Host:   viper.GetString("weaviate.url"),
			Scheme: "http",
		})
		return weaviate.NewSDK(wc), nil
	default:
		return nil, fmt.Errorf("unknown search.backend %q", backend)
	}
}

func newEmbedder() (*embedder.E5Embedder, error) {
	return embedder.New(embedder.Config{
		BaseURL:   viper.GetString("embedding.url"),
		Token:     viper.GetString("embedding.token"),
		Model:     viper.GetString("embedding.model"),
		BatchSize: viper.GetInt("embedding.batch_size"),
	})
}

func newRetention() knowledge.RetentionPolicy {
	return knowledge.RetentionPolicy{
		KeepDocuments: viper.GetBool("media.keep_documents"),
		KeepMedia:     viper.GetBool("media.keep_media"),
	}
}
