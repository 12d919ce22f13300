package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amin-amout/agentpro/internal/report"
	"github.com/amin-amout/agentpro/internal/stages"
)

var statusCmd = &cobra.Command{
	Use:   "status <project>",
	Short: "Show the persisted stage status for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ps, err := a.states.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Println(report.State(ps, stages.Names))
		return nil
	},
}
