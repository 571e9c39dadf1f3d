package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/gallery/internal/api"
	"github.com/lehigh-university-libraries/gallery/internal/models"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		server string
		format string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the images held by the service",
		Example: `  # List images as text
  gallery list

  # List images as YAML from another server
  gallery list --server http://gallery.example:8080 --output yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if server != "" {
				cfg.Client.ServerURL = server
			}

			images, err := api.NewClient(cfg.Client.ServerURL).ListImages(cmd.Context())
			if err != nil {
				return err
			}
			return printImages(cmd.OutOrStdout(), images, format)
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Image service base URL")
	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: text, json, yaml")

	return cmd
}

func printImages(w io.Writer, images []models.Image, format string) error {
	switch format {
	case "text":
		if len(images) == 0 {
			fmt.Fprintln(w, "No images")
			return nil
		}
		for i, img := range images {
			fmt.Fprintf(w, "[%d] %s  %s  %s\n", i, img.ID, img.Name, img.Path)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(images)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(images)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

