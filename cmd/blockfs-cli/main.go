// Command blockfs-cli is an inspection and maintenance tool for a
// block/blob store directory. It is deliberately not the filesystem
// front-end (FUSE bridge, inode/dentry semantics are out of scope for this
// module) — it only exercises the core's public API the way an operator
// or support engineer troubleshooting a store would.
package main

import (
	"fmt"
	"os"

	"github.com/cryfs-go/blockfs/pkg/blocklog"
	"github.com/spf13/cobra"
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
	Use:   "blockfs-cli",
	Short: "Inspect and verify an encrypting content-addressed block store",
	Long: `blockfs-cli is a maintenance tool for the block/blob store that
backs an encrypting content-addressed filesystem. It operates directly
on a store's on-disk root directory; it never mounts a filesystem.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("blockfs-cli version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(verifyCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	blocklog.Init(blocklog.Config{
		Level:      blocklog.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect a store without decrypting its contents",
}
