package eventbridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

var (
	_ Publisher     = (*nats.Conn)(nil)
	_ SnapshotStore = (nats.KeyValue)(nil)
)

// Connect opens a NATS connection that keeps reconnecting while the bridge runs.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	return conn, nil
}

// SnapshotBucket opens the JetStream key-value bucket holding operation
// snapshots, creating it with a history of one when missing.
func SnapshotBucket(conn *nats.Conn, bucket string) (nats.KeyValue, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("opening JetStream: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "Latest state of LXD operations",
			History:     1,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("opening key-value bucket %s: %w", bucket, err)
	}

	return kv, nil
}
