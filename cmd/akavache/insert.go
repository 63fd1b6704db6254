package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/reactiveui/akavache-go/pkg/model"
)

var insertCmd = &cobra.Command{
	Use:   "insert <key> <value>",
	Short: "Store a value under a key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		never, _ := cmd.Flags().GetBool("never")

		expiration := time.Now().Add(ttl)
		if never {
			expiration = model.NeverExpires
		}

		engine, closer, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer closer()

		if err := engine.Insert(cmd.Context(), args[0], []byte(args[1]), expiration); err != nil {
			return err
		}
		fmt.Printf("inserted %q\n", args[0])
		return nil
	},
}

func init() {
	insertCmd.Flags().Duration("ttl", time.Hour, "Time until the entry expires")
	insertCmd.Flags().Bool("never", false, "Entry never expires, overriding --ttl")
}
