// Package lxd provides types, interfaces, and helpers for working with the
// LXD REST API.
//
// # Overview
//
// The lxd package defines the payload types (Instance, Image, StoragePool,
// Network, Certificate, Operation, Server), the response envelope, and the
// interfaces of the resource clients. A concrete implementation is returned
// by the lxdclient package, which wires TLS, transport, operation tracking
// and the events channel.
//
//	cli, err := lxdclient.New(ctx, &lxd.Config{
//	  Endpoint:       "https://10.0.0.1:8443",
//	  ClientCertFile: "client.crt",
//	  ClientKeyFile:  "client.key",
//	  ServerCertFile: "server.crt",
//	})
//	if err != nil { log.Fatal(err) }
//	defer cli.Close()
//
//	instances, err := cli.Instances().List(ctx)
//
// # Schema validation
//
// Every payload is decoded with Decode or DecodeList and then validated.
// A payload that does not match its type yields a *ValidationError whose
// Path names the field, e.g. "metadata.name" or "metadata[2].status_code".
// Partial values are never returned.
//
// # Operations
//
// Mutations the server runs in the background return an async envelope.
// The client waits for the operation before returning, so callers see the
// final result, an *OperationFailedError, or an *OperationCancelled when the
// cancel signal attached with WithCancelSignal fired. Operations().Wait
// exposes the same wait for operations started elsewhere.
//
// # Errors
//
// Use IsNotFound, IsConnectionFailure, IsTimeout, IsValidation,
// IsOperationFailed and IsCancelled to classify errors; they work through
// wrapping.
package lxd
