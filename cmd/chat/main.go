package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sugarchat",
	Short: "Chat activity: relay server, terminal client and chat log tools",
	Long: `sugarchat runs a text chat for XO laptops.

"serve" starts the relay that shares rooms and private chats over WebSocket,
"client" opens the terminal chat window, and "log" reads saved chat logs.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	rootCmd.AddCommand(serveCmd, clientCmd, logCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
