package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/wechat-mac-releaser/internal/config"
	"github.com/oshokin/wechat-mac-releaser/internal/logger"
	"github.com/oshokin/wechat-mac-releaser/internal/service/publisher"
	"github.com/oshokin/wechat-mac-releaser/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// downloadURL overrides link discovery with a direct artifact URL.
	downloadURL string

	// logLevel sets the minimum logging level for this run.
	logLevel string

	// force publishes even when checksums match the latest release.
	force bool

	// rootCmd represents the base command for one publishing run.
	rootCmd = &cobra.Command{
		Use:   "wechat-mac-releaser [owner/repo]",
		Short: "Watch the WeChat for Mac download page and publish new builds as releases",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			options := &publisher.Options{
				ConfigPath:  configPath,
				DownloadURL: downloadURL,
				Force:       force,
			}

			if len(args) > 0 {
				options.Repository = args[0]
			}

			return publisher.Run(ctx, options)
		},
	}
)

// Execute runs the wechat-mac-releaser CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&downloadURL, "download-url", "u", "", "direct artifact URL, skips page scraping")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "minimum logging level (debug, info, warn, error)")
	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "publish even when checksums match the latest release")
}
