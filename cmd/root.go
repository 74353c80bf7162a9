package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "knowbot",
	Short: "Per-user knowledge base with retrieval-augmented answering",
	Long: `knowbot indexes user documents into a search collection and answers
questions against them. It also describes images and transcribes audio
through external model services.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
