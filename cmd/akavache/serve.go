package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reactiveui/akavache-go/pkg/akavache"
	"github.com/reactiveui/akavache-go/pkg/cipher"
	"github.com/reactiveui/akavache-go/pkg/diagnostic"
	"github.com/reactiveui/akavache-go/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open all four cache instances and expose metrics/health endpoints",
	Long: `serve opens the UserAccount, LocalMachine, Secure, and InMemory
cache instances under --data-dir and blocks, serving Prometheus metrics
and liveness/readiness checks over HTTP until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyConfigFile(cmd); err != nil {
			return err
		}

		dataDir, _ := cmd.Flags().GetString("data-dir")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		var secureCipher cipher.Cipher
		if password, _ := cmd.Flags().GetString("secure-password"); password != "" {
			c, err := cipher.NewAESGCMFromPassword(password)
			if err != nil {
				return err
			}
			secureCipher = c
		}

		sink := diagnostic.NewSink()
		defer sink.Stop()

		caches, err := akavache.OpenCaches(akavache.CachesConfig{
			DataDir:      dataDir,
			SecureCipher: secureCipher,
			Base:         akavache.Config{Diagnostics: sink},
		})
		if err != nil {
			return fmt.Errorf("failed to open cache instances: %w", err)
		}

		metrics.SetVersion(Version)
		metrics.RegisterComponent("storage", true, "ready")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())

		server := &http.Server{Addr: metricsAddr, Handler: mux}
		serverErr := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()
		fmt.Printf("akavache serving on http://%s (metrics, health, ready, live)\n", metricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("shutting down...")
		case err := <-serverErr:
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}

		shutdownCtx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		_ = server.Close()
		return caches.Close(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address the metrics/health HTTP server listens on")
}
