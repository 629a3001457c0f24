package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FranksOps/kwdig/internal/keyword"
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List the supported search regions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, name := range keyword.RegionNames() {
			marker := ""
			if keyword.Regions[name] == keyword.DefaultRegion {
				marker = " (default)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s%s\n", name, keyword.Regions[name], marker)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(regionsCmd)
}
