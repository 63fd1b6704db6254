package akavache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/reactiveui/akavache-go/pkg/cipher"
	"github.com/reactiveui/akavache-go/pkg/metrics"
)

// Caches is the process-wide container of the four independently
// configured cache instances every akavache consumer starts from:
// UserAccount and LocalMachine are plain unencrypted on-disk caches
// scoped by convention (account-bound vs. machine-bound data), Secure
// encrypts its Value column with the configured SecureCipher (and is a
// plain unencrypted cache when none is given), and InMemory is a throwaway
// instance useful for tests and ephemeral request-scoped caching.
type Caches struct {
	UserAccount  *Engine
	LocalMachine *Engine
	Secure       *Engine
	InMemory     *Engine

	collector *metrics.Collector
}

// CachesConfig configures OpenCaches. DataDir holds one bbolt file per
// named on-disk instance; SecureCipher, if set, encrypts Secure's Value
// column. A nil SecureCipher still opens Secure, without encryption.
type CachesConfig struct {
	DataDir      string
	SecureCipher cipher.Cipher

	// Base is applied to every instance before its Path/Cipher are set;
	// use it to share a Clock, Serializer, Diagnostics, or VacuumInterval
	// across all four.
	Base Config
}

// OpenCaches opens all four instances under cfg.DataDir, returning
// whatever subset succeeded closed again before the error is returned.
func OpenCaches(cfg CachesConfig) (*Caches, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("akavache: failed to create data directory %s: %w", cfg.DataDir, err)
	}

	c := &Caches{}
	var opened []*Engine

	open := func(name, file string, withCipher cipher.Cipher) (*Engine, error) {
		instCfg := cfg.Base
		instCfg.Path = filepath.Join(cfg.DataDir, file)
		instCfg.Cipher = withCipher
		e, err := Open(name, instCfg)
		if err != nil {
			return nil, err
		}
		opened = append(opened, e)
		return e, nil
	}

	var err error
	if c.UserAccount, err = open("user_account", "user_account.db", nil); err != nil {
		return nil, closeAllAndReturn(opened, err)
	}
	if c.LocalMachine, err = open("local_machine", "local_machine.db", nil); err != nil {
		return nil, closeAllAndReturn(opened, err)
	}
	if c.Secure, err = open("secure", "secure.db", cfg.SecureCipher); err != nil {
		return nil, closeAllAndReturn(opened, err)
	}

	inMemCfg := cfg.Base
	inMemCfg.Path = "" // storage.Open treats "" as ephemeral in-memory-backed
	if c.InMemory, err = Open("in_memory", inMemCfg); err != nil {
		return nil, closeAllAndReturn(opened, err)
	}

	c.collector = metrics.NewCollector(map[string]metrics.Source{
		"user_account":  c.UserAccount,
		"local_machine": c.LocalMachine,
		"secure":        c.Secure,
		"in_memory":     c.InMemory,
	})
	c.collector.Start()

	return c, nil
}

func closeAllAndReturn(opened []*Engine, err error) error {
	ctx := context.Background()
	for _, e := range opened {
		_ = e.Close(ctx)
	}
	return err
}

// Close shuts down all four instances concurrently with an errgroup, so
// one slow or failing instance doesn't delay the others, and returns the
// first error any of them reported.
func (c *Caches) Close(ctx context.Context) error {
	if c.collector != nil {
		c.collector.Stop()
	}

	var g errgroup.Group
	for _, e := range []*Engine{c.UserAccount, c.LocalMachine, c.Secure, c.InMemory} {
		e := e
		g.Go(func() error {
			if e == nil {
				return nil
			}
			return e.Close(ctx)
		})
	}
	return g.Wait()
}
