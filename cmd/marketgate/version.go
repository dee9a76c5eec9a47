package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/marketgate"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of marketgate",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("marketgate version %s\n", strings.TrimSpace(marketgate.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
