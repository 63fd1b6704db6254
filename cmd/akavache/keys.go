package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List every live key in the instance",
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
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}
