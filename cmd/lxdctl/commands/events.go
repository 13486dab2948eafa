package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fivetwenty-io/lxd-client/internal/constants"
	"github.com/fivetwenty-io/lxd-client/internal/eventbridge"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// NewEventsCommand creates the events command group.
func NewEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow the server event stream",
	}

	cmd.AddCommand(newEventsWatchCommand())
	cmd.AddCommand(newEventsForwardCommand())

	return cmd
}

func newEventsWatchCommand() *cobra.Command {
	var types []string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print events as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(client lxd.Client) error {
				events, stop, err := client.Events().Subscribe(cmd.Context(), types...)
				if err != nil {
					return fmt.Errorf("failed to subscribe to events: %w", err)
				}
				defer stop()

				format := viper.GetString("output")

				for event := range events {
					if err := printEvent(event, format); err != nil {
						return err
					}
				}

				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&types, "type", nil, "event types to follow (operation, lifecycle, logging)")

	return cmd
}

func printEvent(event lxd.Event, format string) error {
	if format == constants.FormatJSON || format == constants.FormatYAML {
		return renderTo(os.Stdout, format, event, nil)
	}

	_, err := fmt.Fprintf(os.Stdout, "%s %-10s %s\n", formatTime(event.Timestamp), event.Type, string(event.Metadata))

	return err
}

func newEventsForwardCommand() *cobra.Command {
	var (
		natsURL       string
		subjectPrefix string
		bucket        string
		types         []string
	)

	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Publish events to NATS",
		Long: `Publish every event to NATS under <prefix>.<event type>.

With --bucket the latest state of each operation is also kept in a
JetStream key-value bucket, keyed by operation id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if natsURL == "" {
				return constants.ErrNATSURLRequired
			}

			conn, err := eventbridge.Connect(natsURL, "lxdctl")
			if err != nil {
				return err
			}
			defer conn.Close()

			logger := newLagerLogger(os.Stderr, viper.GetBool("debug"))
			opts := []eventbridge.Option{
				eventbridge.WithSubjectPrefix(subjectPrefix),
				eventbridge.WithLogger(logger),
			}

			if bucket != "" {
				store, err := eventbridge.SnapshotBucket(conn, bucket)
				if err != nil {
					return err
				}

				opts = append(opts, eventbridge.WithSnapshotStore(store))
			}

			bridge := eventbridge.New(conn, opts...)

			return withClient(cmd.Context(), func(client lxd.Client) error {
				events, stop, err := client.Events().Subscribe(cmd.Context(), types...)
				if err != nil {
					return fmt.Errorf("failed to subscribe to events: %w", err)
				}
				defer stop()

				logger.Info("forwarding events", map[string]interface{}{"nats": natsURL, "bucket": bucket})

				err = bridge.Run(cmd.Context(), events)

				stats := bridge.Stats()
				logger.Info("forwarding stopped", map[string]interface{}{
					"published": stats.Published,
					"failed":    stats.Failed,
					"snapshots": stats.Snapshots,
					"stale":     stats.Stale,
				})

				if err != nil && cmd.Context().Err() != nil {
					return nil
				}

				return err
			})
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server URL, e.g. nats://127.0.0.1:4222")
	cmd.Flags().StringVar(&subjectPrefix, "subject-prefix", eventbridge.DefaultSubjectPrefix, "subject prefix")
	cmd.Flags().StringVar(&bucket, "bucket", "", "JetStream key-value bucket for operation snapshots")
	cmd.Flags().StringSliceVar(&types, "type", nil, "event types to forward (operation, lifecycle, logging)")

	return cmd
}
