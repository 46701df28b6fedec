// Command idiorag runs the IdioRAG document question-answering service.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var configPath string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "idiorag",
		Short:        "Multi-user retrieval-augmented question answering over your own documents",
		Version:      Version,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTokenCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
