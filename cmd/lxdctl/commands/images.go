package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// NewImagesCommand creates the images command group.
func NewImagesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "images",
		Aliases: []string{"image"},
		Short:   "Manage images",
	}

	cmd.AddCommand(newImagesListCommand())
	cmd.AddCommand(newImagesGetCommand())
	cmd.AddCommand(newImagesSetCommand())
	cmd.AddCommand(newImagesDeleteCommand())

	return cmd
}

func imageAliases(image lxd.Image) string {
	if len(image.Aliases) == 0 {
		return ""
	}

	names := image.Aliases[0].Name
	for _, alias := range image.Aliases[1:] {
		names += "," + alias.Name
	}

	return names
}

func newImagesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				images, err := client.Images().List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list images: %w", err)
				}

				return renderOutput(images, func() error {
					rows := make([][]string, 0, len(images))
					for _, image := range images {
						rows = append(rows, []string{
							shortFingerprint(image.Fingerprint),
							imageAliases(image),
							valueOrNA(image.Properties["description"]),
							valueOrNA(image.Architecture),
							formatBytes(image.Size),
							strconv.FormatBool(image.Public),
							formatTime(image.UploadedAt),
						})
					}

					return renderTable([]string{"Fingerprint", "Aliases", "Description", "Architecture", "Size", "Public", "Uploaded"}, rows)
				})
			})
		},
	}
}

func newImagesGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get FINGERPRINT",
		Short: "Get image details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				image, err := client.Images().Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get image: %w", err)
				}

				return renderOutput(image, func() error {
					rows := [][]string{
						{"Fingerprint", image.Fingerprint},
						{"Aliases", valueOrNA(imageAliases(*image))},
						{"Filename", valueOrNA(image.Filename)},
						{"Type", valueOrNA(image.Type)},
						{"Architecture", valueOrNA(image.Architecture)},
						{"Size", formatBytes(image.Size)},
						{"Public", strconv.FormatBool(image.Public)},
						{"Auto Update", strconv.FormatBool(image.AutoUpdate)},
						{"Created", formatTime(image.CreatedAt)},
						{"Uploaded", formatTime(image.UploadedAt)},
						{"Expires", formatTime(image.ExpiresAt)},
					}

					for key, value := range image.Properties {
						rows = append(rows, []string{"property." + key, value})
					}

					return renderTable([]string{"Property", "Value"}, rows)
				})
			})
		},
	}
}

func newImagesSetCommand() *cobra.Command {
	var (
		public     bool
		autoUpdate bool
		properties []string
	)

	cmd := &cobra.Command{
		Use:   "set FINGERPRINT",
		Short: "Change image properties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseKeyValues(properties)
			if err != nil {
				return err
			}

			return withClient(cmd.Context(), func(client lxd.Client) error {
				image, err := client.Images().Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get image: %w", err)
				}

				put := &lxd.ImagePut{
					AutoUpdate: image.AutoUpdate,
					Public:     image.Public,
					Properties: mergeConfig(image.Properties, values),
					Profiles:   image.Profiles,
					ExpiresAt:  image.ExpiresAt,
				}

				if cmd.Flags().Changed("public") {
					put.Public = public
				}

				if cmd.Flags().Changed("auto-update") {
					put.AutoUpdate = autoUpdate
				}

				if err := client.Images().Update(cmd.Context(), image.Fingerprint, put); err != nil {
					return fmt.Errorf("failed to update image: %w", err)
				}

				_, _ = fmt.Fprintf(os.Stdout, "Image %s updated\n", shortFingerprint(image.Fingerprint))

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&public, "public", false, "make the image available to untrusted clients")
	cmd.Flags().BoolVar(&autoUpdate, "auto-update", false, "refresh the image from its source")
	cmd.Flags().StringArrayVar(&properties, "property", nil, "property key=value (repeatable)")

	return cmd
}

func newImagesDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete FINGERPRINT",
		Short: "Delete an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				if err := client.Images().Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete image: %w", err)
				}

				_, _ = fmt.Fprintf(os.Stdout, "Image %s deleted\n", shortFingerprint(args[0]))

				return nil
			})
		},
	}
}
