package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/canopy/internal/presentation/graph"
	"github.com/aretw0/canopy/pkg/hsm"
	"github.com/aretw0/canopy/pkg/router"
	"github.com/aretw0/canopy/pkg/tot"
)

var graphCmd = &cobra.Command{
	Use:       "graph [tot|router]",
	Short:     "Export a state machine as a Mermaid diagram",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"tot", "router"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var def hsm.Definition
		name := "tot"
		if len(args) > 0 {
			name = args[0]
		}
		switch name {
		case "router":
			def = router.Definition()
		default:
			def = tot.Definition()
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(def, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
