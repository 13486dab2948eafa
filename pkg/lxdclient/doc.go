// Package lxdclient provides the main entry point for creating LXD API
// clients that implement the lxd.Client interface.
//
// A client holds one session with one server: the mutual TLS transport, the
// project scope, the negotiated server description and, when the server
// trusts the client, a shared events connection used to follow background
// operations. Calls that start an operation return only once it finished.
//
// Quick start
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/lxd-client/pkg/lxd"
//	  "github.com/fivetwenty-io/lxd-client/pkg/lxdclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//
//	  cli, err := lxdclient.New(ctx, &lxd.Config{
//	    Endpoint:       "https://10.0.0.1:8443",
//	    ClientCertFile: "client.crt",
//	    ClientKeyFile:  "client.key",
//	    ServerCertFile: "server.crt",
//	  })
//	  if err != nil { log.Fatal(err) }
//	  defer cli.Close()
//
//	  // Blocks until the create operation finished on the server.
//	  _, err = cli.Instances().Create(ctx, &lxd.InstancesPost{
//	    Name:   "web",
//	    Source: lxd.InstanceSource{Type: "image", Alias: "ubuntu/24.04"},
//	  })
//	  if err != nil { log.Fatal(err) }
//	}
//
// Waiting
//
// Operations are followed over the events channel when the session is
// trusted, with polling as a fallback; set lxd.Config.WaitStrategy to
// lxd.WaitStrategyPoll to never open it. Attach a cancel signal with
// lxd.WithCancelSignal to ask the server to cancel an operation in flight.
//
// Errors
//
// Server errors are *lxd.APIError, malformed payloads *lxd.ValidationError,
// failed operations *lxd.OperationFailedError. Use the lxd.Is* helpers to
// classify them.
package lxdclient
