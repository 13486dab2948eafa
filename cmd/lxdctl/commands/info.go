package commands

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// NewInfoCommand creates the info command.
func NewInfoCommand() *cobra.Command {
	var extensions bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Display server information",
		Long:  "Display the server description, trust status and environment of the configured remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				server, err := client.GetServer(cmd.Context())
				if err != nil {
					return err
				}

				return renderOutput(server, func() error {
					rows := [][]string{
						{"API Version", server.APIVersion},
						{"API Status", valueOrNA(server.APIStatus)},
						{"Auth", server.Auth},
						{"Auth Methods", valueOrNA(strings.Join(server.AuthMethods, ", "))},
						{"Public", strconv.FormatBool(server.Public)},
						{"Server", valueOrNA(server.Environment.Server)},
						{"Server Name", valueOrNA(server.Environment.ServerName)},
						{"Server Version", valueOrNA(server.Environment.ServerVersion)},
						{"Kernel", valueOrNA(strings.TrimSpace(server.Environment.Kernel + " " + server.Environment.KernelVersion))},
						{"Driver", valueOrNA(strings.TrimSpace(server.Environment.Driver + " " + server.Environment.DriverVersion))},
						{"Architectures", valueOrNA(strings.Join(server.Environment.Architectures, ", "))},
						{"Project", valueOrNA(server.Environment.Project)},
					}

					if extensions {
						rows = append(rows, []string{"Extensions", strings.Join(server.APIExtensions, ", ")})
					} else {
						rows = append(rows, []string{"Extensions", strconv.Itoa(len(server.APIExtensions))})
					}

					return renderTable([]string{"Property", "Value"}, rows)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&extensions, "extensions", false, "list every API extension")

	return cmd
}
