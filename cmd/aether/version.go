package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/aether"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of aether",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("aether version %s\n", strings.TrimSpace(aether.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
