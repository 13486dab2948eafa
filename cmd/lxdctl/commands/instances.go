package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/lxd-client/internal/constants"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// NewInstancesCommand creates the instances command group.
func NewInstancesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "instances",
		Aliases: []string{"instance", "i"},
		Short:   "Manage instances",
		Long:    "List, inspect, create, delete and change the state of containers and virtual machines",
	}

	cmd.AddCommand(newInstancesListCommand())
	cmd.AddCommand(newInstancesGetCommand())
	cmd.AddCommand(newInstancesStateCommand())
	cmd.AddCommand(newInstancesCreateCommand())
	cmd.AddCommand(newInstancesDeleteCommand())
	cmd.AddCommand(newInstancesSetCommand())

	for _, action := range []string{
		constants.ActionStart,
		constants.ActionStop,
		constants.ActionRestart,
		constants.ActionFreeze,
		constants.ActionUnfreeze,
	} {
		cmd.AddCommand(newInstanceActionCommand(action))
	}

	return cmd
}

func newInstancesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				instances, err := client.Instances().List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list instances: %w", err)
				}

				return renderOutput(instances, func() error {
					if len(instances) == 0 {
						_, _ = fmt.Fprintln(os.Stdout, "No instances found")

						return nil
					}

					rows := make([][]string, 0, len(instances))
					for _, instance := range instances {
						rows = append(rows, []string{
							instance.Name,
							instance.Status,
							valueOrNA(instance.Type),
							valueOrNA(instance.Architecture),
							strings.Join(instance.Profiles, ","),
							formatTime(instance.CreatedAt),
						})
					}

					return renderTable([]string{"Name", "Status", "Type", "Architecture", "Profiles", "Created"}, rows)
				})
			})
		},
	}
}

func newInstancesGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Get instance details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				instance, err := client.Instances().Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get instance: %w", err)
				}

				return renderOutput(instance, func() error {
					rows := [][]string{
						{"Name", instance.Name},
						{"Status", instance.Status},
						{"Type", valueOrNA(instance.Type)},
						{"Description", valueOrNA(instance.Description)},
						{"Architecture", valueOrNA(instance.Architecture)},
						{"Profiles", strings.Join(instance.Profiles, ", ")},
						{"Ephemeral", strconv.FormatBool(instance.Ephemeral)},
						{"Location", valueOrNA(instance.Location)},
						{"Created", formatTime(instance.CreatedAt)},
						{"Last Used", formatTime(instance.LastUsedAt)},
					}

					for key, value := range instance.Config {
						rows = append(rows, []string{"config." + key, value})
					}

					return renderTable([]string{"Property", "Value"}, rows)
				})
			})
		},
	}
}

func newInstancesStateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "state NAME",
		Short: "Show the runtime state of an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				state, err := client.Instances().GetState(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get instance state: %w", err)
				}

				return renderOutput(state, func() error {
					rows := [][]string{
						{"Status", state.Status},
						{"PID", strconv.FormatInt(state.Pid, 10)},
						{"Processes", strconv.FormatInt(state.Processes, 10)},
						{"CPU Usage (ns)", strconv.FormatInt(state.CPU.Usage, 10)},
						{"Memory", formatBytes(state.Memory.Usage)},
						{"Memory Peak", formatBytes(state.Memory.UsagePeak)},
					}

					for name, network := range state.Network {
						for _, address := range network.Addresses {
							rows = append(rows, []string{name, address.Address + "/" + address.Netmask})
						}
					}

					return renderTable([]string{"Property", "Value"}, rows)
				})
			})
		},
	}
}

func newInstancesCreateCommand() *cobra.Command {
	var (
		image        string
		fingerprint  string
		instanceType string
		description  string
		profiles     []string
		config       []string
		ephemeral    bool
		start        bool
	)

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an instance",
		Long:  "Create an instance from an image and wait for the creation to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if image == "" && fingerprint == "" {
				return constants.ErrImageRequired
			}

			values, err := parseKeyValues(config)
			if err != nil {
				return err
			}

			request := &lxd.InstancesPost{
				Name:        args[0],
				Type:        instanceType,
				Description: description,
				Source: lxd.InstanceSource{
					Type:        "image",
					Alias:       image,
					Fingerprint: fingerprint,
				},
				Config:    values,
				Profiles:  profiles,
				Ephemeral: ephemeral,
			}

			return withClient(cmd.Context(), func(client lxd.Client) error {
				if _, err := client.Instances().Create(cmd.Context(), request); err != nil {
					return fmt.Errorf("failed to create instance: %w", err)
				}

				_, _ = fmt.Fprintf(os.Stdout, "Instance %s created\n", request.Name)

				if !start {
					return nil
				}

				return changeInstanceState(cmd.Context(), client, request.Name, &lxd.InstanceStatePut{
					Action:  constants.ActionStart,
					Timeout: -1,
				})
			})
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "image alias to create from")
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "image fingerprint to create from")
	cmd.Flags().StringVar(&instanceType, "type", "", "instance type (container or virtual-machine)")
	cmd.Flags().StringVar(&description, "description", "", "instance description")
	cmd.Flags().StringSliceVarP(&profiles, "profile", "p", nil, "profiles to apply")
	cmd.Flags().StringArrayVar(&config, "config", nil, "configuration key=value (repeatable)")
	cmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "delete the instance when it stops")
	cmd.Flags().BoolVar(&start, "start", false, "start the instance once created")

	return cmd
}

func newInstancesSetCommand() *cobra.Command {
	var (
		config      []string
		description string
	)

	cmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Change instance configuration",
		Long:  "Merge configuration keys into an instance. An empty value removes the key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseKeyValues(config)
			if err != nil {
				return err
			}

			return withClient(cmd.Context(), func(client lxd.Client) error {
				instance, err := client.Instances().Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get instance: %w", err)
				}

				put := instance.Writable()
				put.Config = mergeConfig(put.Config, values)

				if cmd.Flags().Changed("description") {
					put.Description = description
				}

				if err := client.Instances().Update(cmd.Context(), args[0], &put); err != nil {
					return fmt.Errorf("failed to update instance: %w", err)
				}

				_, _ = fmt.Fprintf(os.Stdout, "Instance %s updated\n", args[0])

				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&config, "config", nil, "configuration key=value (repeatable)")
	cmd.Flags().StringVar(&description, "description", "", "instance description")

	return cmd
}

func newInstancesDeleteCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				if force {
					instance, err := client.Instances().Get(cmd.Context(), args[0])
					if err != nil {
						return fmt.Errorf("failed to get instance: %w", err)
					}

					if instance.StatusCode != lxd.Stopped {
						err := changeInstanceState(cmd.Context(), client, args[0], &lxd.InstanceStatePut{
							Action:  constants.ActionStop,
							Timeout: -1,
							Force:   true,
						})
						if err != nil {
							return err
						}
					}
				}

				if err := client.Instances().Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete instance: %w", err)
				}

				_, _ = fmt.Fprintf(os.Stdout, "Instance %s deleted\n", args[0])

				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "stop the instance first if it is running")

	return cmd
}

func newInstanceActionCommand(action string) *cobra.Command {
	var (
		timeout  int
		force    bool
		stateful bool
	)

	cmd := &cobra.Command{
		Use:   action + " NAME",
		Short: strings.ToUpper(action[:1]) + action[1:] + " an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				return changeInstanceState(cmd.Context(), client, args[0], &lxd.InstanceStatePut{
					Action:   action,
					Timeout:  timeout,
					Force:    force,
					Stateful: stateful,
				})
			})
		},
	}

	cmd.Flags().IntVar(&timeout, "timeout", -1, "seconds the server waits for the action, -1 for no limit")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "force the action")
	cmd.Flags().BoolVar(&stateful, "stateful", false, "save or restore runtime state")

	return cmd
}

func changeInstanceState(ctx context.Context, client lxd.Client, name string, request *lxd.InstanceStatePut) error {
	if _, err := client.Instances().UpdateState(ctx, name, request); err != nil {
		return fmt.Errorf("failed to %s instance %s: %w", request.Action, name, err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "Instance %s: %s done\n", name, request.Action)

	return nil
}
