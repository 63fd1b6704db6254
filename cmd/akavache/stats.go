package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print live entry count and queue depth for the instance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closer, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closer()

		keys, err := engine.GetAllKeys(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("instance:     %s\n", engine.Name())
		fmt.Printf("state:        %s\n", engine.State())
		fmt.Printf("live entries: %d\n", len(keys))
		fmt.Printf("pending ops:  %d\n", engine.PendingOps())
		return nil
	},
}
