package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// NewOperationsCommand creates the operations command group.
func NewOperationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "operations",
		Aliases: []string{"operation", "ops"},
		Short:   "Manage background operations",
		Long:    "List, inspect, wait for and cancel background operations running on the server",
	}

	cmd.AddCommand(newOperationsListCommand())
	cmd.AddCommand(newOperationsGetCommand())
	cmd.AddCommand(newOperationsWaitCommand())
	cmd.AddCommand(newOperationsCancelCommand())

	return cmd
}

func operationRow(op lxd.Operation) []string {
	return []string{
		op.ID,
		string(op.Class),
		op.Description,
		op.Status,
		strconv.FormatBool(op.MayCancel),
		formatTime(op.CreatedAt),
	}
}

func renderOperation(op *lxd.Operation) error {
	return renderOutput(op, func() error {
		rows := [][]string{
			{"ID", op.ID},
			{"Class", string(op.Class)},
			{"Description", valueOrNA(op.Description)},
			{"Status", op.Status},
			{"Status Code", strconv.Itoa(int(op.StatusCode))},
			{"May Cancel", strconv.FormatBool(op.MayCancel)},
			{"Created", formatTime(op.CreatedAt)},
			{"Updated", formatTime(op.UpdatedAt)},
			{"Location", valueOrNA(op.Location)},
		}

		if op.Err != "" {
			rows = append(rows, []string{"Error", op.Err})
		}

		for kind, urls := range op.Resources {
			for _, url := range urls {
				rows = append(rows, []string{"resource." + kind, url})
			}
		}

		return renderTable([]string{"Property", "Value"}, rows)
	})
}

func newOperationsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				operations, err := client.Operations().List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list operations: %w", err)
				}

				return renderOutput(operations, func() error {
					rows := make([][]string, 0, len(operations))
					for _, op := range operations {
						rows = append(rows, operationRow(op))
					}

					return renderTable([]string{"ID", "Class", "Description", "Status", "Cancelable", "Created"}, rows)
				})
			})
		},
	}
}

func newOperationsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Get operation details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				op, err := client.Operations().Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get operation: %w", err)
				}

				return renderOperation(op)
			})
		},
	}
}

func newOperationsWaitCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait ID",
		Short: "Wait for an operation to finish",
		Long:  "Block until the operation succeeds, fails or is cancelled, then print its final state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				op, err := client.Operations().Wait(cmd.Context(), args[0], lxd.WaitOptions{Timeout: timeout})
				if err != nil {
					return fmt.Errorf("failed waiting for operation: %w", err)
				}

				return renderOperation(op)
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits indefinitely)")

	return cmd
}

func newOperationsCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				if err := client.Operations().Cancel(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to cancel operation: %w", err)
				}

				_, _ = fmt.Fprintf(os.Stdout, "Cancellation of operation %s requested\n", args[0])

				return nil
			})
		},
	}
}
