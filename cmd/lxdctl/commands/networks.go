package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// NewNetworksCommand creates the networks command group.
func NewNetworksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "networks",
		Aliases: []string{"network", "net"},
		Short:   "Manage networks",
	}

	cmd.AddCommand(newNetworksListCommand())
	cmd.AddCommand(newNetworksGetCommand())
	cmd.AddCommand(newNetworksCreateCommand())
	cmd.AddCommand(newNetworksSetCommand())
	cmd.AddCommand(newNetworksDeleteCommand())

	return cmd
}

func newNetworksListCommand() *cobra.Command {
	var managedOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List networks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				networks, err := client.Networks().List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list networks: %w", err)
				}

				if managedOnly {
					managed := networks[:0]
					for _, network := range networks {
						if network.Managed {
							managed = append(managed, network)
						}
					}

					networks = managed
				}

				return renderOutput(networks, func() error {
					rows := make([][]string, 0, len(networks))
					for _, network := range networks {
						rows = append(rows, []string{
							network.Name,
							valueOrNA(network.Type),
							strconv.FormatBool(network.Managed),
							valueOrNA(network.Config["ipv4.address"]),
							valueOrNA(network.Status),
							strconv.Itoa(len(network.UsedBy)),
						})
					}

					return renderTable([]string{"Name", "Type", "Managed", "IPv4", "Status", "Used By"}, rows)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&managedOnly, "managed", false, "only show networks managed by the server")

	return cmd
}

func newNetworksGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Get network details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				network, err := client.Networks().Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get network: %w", err)
				}

				return renderOutput(network, func() error {
					rows := [][]string{
						{"Name", network.Name},
						{"Type", valueOrNA(network.Type)},
						{"Managed", strconv.FormatBool(network.Managed)},
						{"Description", valueOrNA(network.Description)},
						{"Status", valueOrNA(network.Status)},
					}

					for key, value := range network.Config {
						rows = append(rows, []string{"config." + key, value})
					}

					return renderTable([]string{"Property", "Value"}, rows)
				})
			})
		},
	}
}

func newNetworksCreateCommand() *cobra.Command {
	var (
		networkType string
		description string
		config      []string
	)

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseKeyValues(config)
			if err != nil {
				return err
			}

			return withClient(cmd.Context(), func(client lxd.Client) error {
				err := client.Networks().Create(cmd.Context(), &lxd.NetworksPost{
					Name:        args[0],
					Type:        networkType,
					Description: description,
					Config:      values,
				})
				if err != nil {
					return fmt.Errorf("failed to create network: %w", err)
				}

				_, _ = fmt.Fprintf(os.Stdout, "Network %s created\n", args[0])

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&networkType, "type", "", "network type (bridge, macvlan, sriov, ovn, physical)")
	cmd.Flags().StringVar(&description, "description", "", "network description")
	cmd.Flags().StringArrayVar(&config, "config", nil, "configuration key=value (repeatable)")

	return cmd
}

func newNetworksSetCommand() *cobra.Command {
	var (
		description string
		config      []string
	)

	cmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Change network configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseKeyValues(config)
			if err != nil {
				return err
			}

			return withClient(cmd.Context(), func(client lxd.Client) error {
				network, err := client.Networks().Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get network: %w", err)
				}

				put := &lxd.NetworkPut{
					Description: network.Description,
					Config:      mergeConfig(network.Config, values),
				}

				if cmd.Flags().Changed("description") {
					put.Description = description
				}

				if err := client.Networks().Update(cmd.Context(), args[0], put); err != nil {
					return fmt.Errorf("failed to update network: %w", err)
				}

				_, _ = fmt.Fprintf(os.Stdout, "Network %s updated\n", args[0])

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "network description")
	cmd.Flags().StringArrayVar(&config, "config", nil, "configuration key=value (repeatable)")

	return cmd
}

func newNetworksDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				if err := client.Networks().Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete network: %w", err)
				}

				_, _ = fmt.Fprintf(os.Stdout, "Network %s deleted\n", args[0])

				return nil
			})
		},
	}
}
