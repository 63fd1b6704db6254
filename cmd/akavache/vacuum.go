package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Delete expired entries and reclaim space from the instance's backing file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closer, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closer()

		if err := engine.Vacuum(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("vacuum complete")
		return nil
	},
}
