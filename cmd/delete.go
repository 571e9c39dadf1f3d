package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/gallery/internal/api"
	"github.com/lehigh-university-libraries/gallery/internal/notify"
)

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an image from the service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if server != "" {
				cfg.Client.ServerURL = server
			}

			notifier := notify.Log{}
			if err := api.NewClient(cfg.Client.ServerURL).DeleteImage(cmd.Context(), args[0]); err != nil {
				notifier.Notify(notify.Error("Failed to delete"))
				return err
			}
			notifier.Notify(notify.Success("Image deleted"))
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Image service base URL")

	return cmd
}
