package commands

import (
	"context"
	"os"

	"github.com/spf13/viper"

	"github.com/fivetwenty-io/lxd-client/internal/constants"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
	"github.com/fivetwenty-io/lxd-client/pkg/lxdclient"
)

// buildClientConfig maps the CLI configuration onto a client configuration.
// Certificate settings are file paths.
func buildClientConfig(config *Config) (*lxd.Config, error) {
	if config.Remote == "" {
		return nil, constants.ErrNoRemoteConfigured
	}

	clientConfig := &lxd.Config{
		Endpoint:       config.Remote,
		ClientCertFile: config.ClientCert,
		ClientKeyFile:  config.ClientKey,
		ServerCertFile: config.ServerCert,
		SkipTLSVerify:  config.SkipTLSVerify,
		Project:        config.Project,
		Debug:          config.Debug,
		UserAgent:      "lxdctl/" + constants.APIVersion,
		Logger:         newLagerLogger(os.Stderr, config.Debug),
	}

	if viper.GetBool("poll") {
		clientConfig.WaitStrategy = lxd.WaitStrategyPoll
	}

	if timeout := viper.GetDuration("operation_timeout"); timeout > 0 {
		clientConfig.OperationTimeout = timeout
	}

	return clientConfig, nil
}

// CreateClient opens a session against the configured remote.
func CreateClient(ctx context.Context) (lxd.Client, error) {
	config := loadConfig()

	if err := validateOutputFormat(config.Output); err != nil {
		return nil, err
	}

	clientConfig, err := buildClientConfig(config)
	if err != nil {
		return nil, err
	}

	return lxdclient.New(ctx, clientConfig)
}

// withClient opens a session, runs fn and closes the session.
func withClient(ctx context.Context, fn func(client lxd.Client) error) error {
	client, err := CreateClient(ctx)
	if err != nil {
		return err
	}

	defer func() { _ = client.Close() }()

	return fn(client)
}
