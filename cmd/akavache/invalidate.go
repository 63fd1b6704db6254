package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate [key]",
	Short: "Remove one key, or every entry with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return fmt.Errorf("either a key or --all is required")
		}

		engine, closer, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closer()

		if all {
			if err := engine.InvalidateAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("invalidated all entries")
			return nil
		}

		if err := engine.Invalidate(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("invalidated %q\n", args[0])
		return nil
	},
}

func init() {
	invalidateCmd.Flags().Bool("all", false, "Remove every entry in the instance")
}
