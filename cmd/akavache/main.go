package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reactiveui/akavache-go/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "akavache",
	Short: "akavache - a persistent, asynchronous blob/object cache engine",
	Long: `akavache is a single-writer, bbolt-backed key/value cache with
per-entry expiration, type-tagged objects, and read-through fetch
deduplication, operated here as a standalone CLI over one cache
instance at a time.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("akavache version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "./akavache-data", "Directory holding the cache instance database files")
	rootCmd.PersistentFlags().String("instance", "local_machine", "Cache instance to operate on (user_account, local_machine, secure, in_memory)")
	rootCmd.PersistentFlags().String("secure-password", "", "Password deriving the Secure instance's AES-256-GCM key (required when --instance=secure)")
	rootCmd.PersistentFlags().String("config", "", "Optional YAML file of defaults for the above flags")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(insertCmd)
	rootCmd.AddCommand(invalidateCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(vacuumCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
