package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/lxd-client/internal/constants"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// NewStorageCommand creates the storage pools command group.
func NewStorageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "storage",
		Aliases: []string{"pools"},
		Short:   "Manage storage pools",
	}

	cmd.AddCommand(newStorageListCommand())
	cmd.AddCommand(newStorageGetCommand())
	cmd.AddCommand(newStorageCreateCommand())
	cmd.AddCommand(newStorageSetCommand())
	cmd.AddCommand(newStorageDeleteCommand())

	return cmd
}

func newStorageListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List storage pools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				pools, err := client.StoragePools().List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list storage pools: %w", err)
				}

				return renderOutput(pools, func() error {
					rows := make([][]string, 0, len(pools))
					for _, pool := range pools {
						rows = append(rows, []string{
							pool.Name,
							pool.Driver,
							valueOrNA(pool.Description),
							valueOrNA(pool.Status),
							strconv.Itoa(len(pool.UsedBy)),
						})
					}

					return renderTable([]string{"Name", "Driver", "Description", "Status", "Used By"}, rows)
				})
			})
		},
	}
}

func newStorageGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Get storage pool details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				pool, err := client.StoragePools().Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get storage pool: %w", err)
				}

				return renderOutput(pool, func() error {
					rows := [][]string{
						{"Name", pool.Name},
						{"Driver", pool.Driver},
						{"Description", valueOrNA(pool.Description)},
						{"Status", valueOrNA(pool.Status)},
						{"Used By", valueOrNA(strings.Join(pool.UsedBy, ", "))},
					}

					for key, value := range pool.Config {
						rows = append(rows, []string{"config." + key, value})
					}

					return renderTable([]string{"Property", "Value"}, rows)
				})
			})
		},
	}
}

func newStorageCreateCommand() *cobra.Command {
	var (
		driver      string
		description string
		config      []string
	)

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a storage pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if driver == "" {
				return constants.ErrDriverRequired
			}

			values, err := parseKeyValues(config)
			if err != nil {
				return err
			}

			return withClient(cmd.Context(), func(client lxd.Client) error {
				err := client.StoragePools().Create(cmd.Context(), &lxd.StoragePoolsPost{
					Name:        args[0],
					Driver:      driver,
					Description: description,
					Config:      values,
				})
				if err != nil {
					return fmt.Errorf("failed to create storage pool: %w", err)
				}

				_, _ = fmt.Fprintf(os.Stdout, "Storage pool %s created\n", args[0])

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "storage driver (dir, zfs, btrfs, lvm, ceph)")
	cmd.Flags().StringVar(&description, "description", "", "pool description")
	cmd.Flags().StringArrayVar(&config, "config", nil, "configuration key=value (repeatable)")

	return cmd
}

func newStorageSetCommand() *cobra.Command {
	var (
		description string
		config      []string
	)

	cmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Change storage pool configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseKeyValues(config)
			if err != nil {
				return err
			}

			return withClient(cmd.Context(), func(client lxd.Client) error {
				pool, err := client.StoragePools().Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get storage pool: %w", err)
				}

				put := &lxd.StoragePoolPut{
					Description: pool.Description,
					Config:      mergeConfig(pool.Config, values),
				}

				if cmd.Flags().Changed("description") {
					put.Description = description
				}

				if err := client.StoragePools().Update(cmd.Context(), args[0], put); err != nil {
					return fmt.Errorf("failed to update storage pool: %w", err)
				}

				_, _ = fmt.Fprintf(os.Stdout, "Storage pool %s updated\n", args[0])

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "pool description")
	cmd.Flags().StringArrayVar(&config, "config", nil, "configuration key=value (repeatable)")

	return cmd
}

func newStorageDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a storage pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				if err := client.StoragePools().Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete storage pool: %w", err)
				}

				_, _ = fmt.Fprintf(os.Stdout, "Storage pool %s deleted\n", args[0])

				return nil
			})
		},
	}
}
