package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/everythingsuckz/streamgate/config"
)

// versionString is stamped at build time via -ldflags; "dev" otherwise.
var versionString = "dev"

var rootCmd = &cobra.Command{
	Use:   "streamgate",
	Short: "streamgate turns Telegram-stored files into range-capable HTTP resources",
}

func init() {
	rootCmd.AddCommand(runCmd)
	config.SetFlagsFromConfig(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
