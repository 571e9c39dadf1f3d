package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/gallery/internal/api"
	"github.com/lehigh-university-libraries/gallery/internal/notify"
)

func newUploadCmd(opts *rootOptions) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image to the service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if server != "" {
				cfg.Client.ServerURL = server
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			notifier := notify.Log{}
			img, err := api.NewClient(cfg.Client.ServerURL).UploadImage(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				notifier.Notify(notify.Error("Upload failed"))
				return err
			}
			notifier.Notify(notify.Success("Image uploaded"))
			fmt.Fprintln(cmd.OutOrStdout(), img.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Image service base URL")

	return cmd
}
