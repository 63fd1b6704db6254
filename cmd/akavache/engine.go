package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reactiveui/akavache-go/pkg/akavache"
	"github.com/reactiveui/akavache-go/pkg/cipher"
)

// openEngine opens the single instance selected by --instance against a
// file under --data-dir (or an ephemeral in-memory instance for
// "in_memory"), returning a closer the caller must run when done.
func openEngine(cmd *cobra.Command) (*akavache.Engine, func(), error) {
	if err := applyConfigFile(cmd); err != nil {
		return nil, nil, err
	}

	instance, _ := cmd.Flags().GetString("instance")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	cfg := akavache.Config{}
	if instance != "in_memory" {
		cfg.Path = filepath.Join(dataDir, instance+".db")
	}

	if instance == "secure" {
		password, _ := cmd.Flags().GetString("secure-password")
		if password == "" {
			return nil, nil, fmt.Errorf("--secure-password is required for --instance=secure")
		}
		c, err := cipher.NewAESGCMFromPassword(password)
		if err != nil {
			return nil, nil, err
		}
		cfg.Cipher = c
	}

	engine, err := akavache.Open(instance, cfg)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		_ = engine.Close(cmd.Context())
	}
	return engine, closer, nil
}
