package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/gallery/internal/config"
	"github.com/lehigh-university-libraries/gallery/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// load reads the layered configuration for a subcommand.
func (o *rootOptions) load() (config.Config, error) {
	return config.Load(o.configPath)
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Live image gallery client and service",
		Long: `Gallery keeps a local image collection in sync with an image service.

The client performs a bulk load, follows the service's push channel for
additions and removals, deletes images optimistically, and rotates the
images through a small set of carousel slots. The same binary can run the
image service itself.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			logging.Configure(os.Stderr, opts.logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a TOML config file (default gallery.toml if present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error, off (overrides "+logging.EnvLogLevel+")")

	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newUploadCmd(opts))
	cmd.AddCommand(newDeleteCmd(opts))
	cmd.AddCommand(newServeCmd(opts))

	return cmd
}
