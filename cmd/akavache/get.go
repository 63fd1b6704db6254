package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Fetch the live value stored at a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closer, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closer()

		value, err := engine.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(string(value))
		return nil
	},
}
