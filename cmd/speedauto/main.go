// Command speedauto runs the SpeedAuto dealership assistant: an HTTP server
// for the dashboard chat widget and a terminal REPL over the same pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/speedauto/speedauto-assistant-go/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "speedauto",
		Short:         "Assistente conversacional da concessionária SpeedAuto",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// --- Load .env file (for local development) ---
			return config.LoadDotEnv(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "arquivo .env carregado antes da configuração")

	root.AddCommand(newServeCmd(), newChatCmd())
	return root
}
