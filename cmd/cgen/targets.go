package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cgen/internal/target"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the registered code generation targets",
	Run: func(cmd *cobra.Command, args []string) {
		target.Initialize()
		nativeName := ""
		if native, err := target.Native(); err == nil {
			nativeName = native.Name
		}
		for _, name := range target.Names() {
			marker := " "
			if name == nativeName {
				marker = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
		}
	},
}
