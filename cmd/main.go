package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "solrtmp",
		Short: "RTMP client for connecting, playing and publishing streams",
		Long: `solrtmp speaks RTMP to a media server.

It connects to an application, creates streams, plays them into an
FLV file or publishes an FLV file, and keeps shared objects in a
file or S3 store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the config file (default configs/default.yaml)")

	rootCmd.AddCommand(
		connectCmd(&configPath),
		playCmd(&configPath),
		publishCmd(&configPath),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}
