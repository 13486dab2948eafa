package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/lxd-client/internal/constants"
)

// Config represents the CLI configuration.
type Config struct {
	Remote        string `json:"remote,omitempty"      yaml:"remote,omitempty"`
	ClientCert    string `json:"client_cert,omitempty" yaml:"client_cert,omitempty"`
	ClientKey     string `json:"client_key,omitempty"  yaml:"client_key,omitempty"`
	ServerCert    string `json:"server_cert,omitempty" yaml:"server_cert,omitempty"`
	Project       string `json:"project,omitempty"     yaml:"project,omitempty"`
	SkipTLSVerify bool   `json:"skip_tls_verify"       yaml:"skip_tls_verify"`
	Output        string `json:"output"                yaml:"output"`
	Debug         bool   `json:"debug"                 yaml:"debug"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Manage the remote, client certificates and output settings",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigUnsetCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			return renderOutput(config, func() error {
				return displayConfigTable(config)
			})
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long: `Set a configuration value.

Keys: remote, client_cert, client_key, server_cert, project, skip_tls_verify, output, debug`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			if err := setConfigValue(config, args[0], args[1]); err != nil {
				return err
			}

			if err := saveConfigStruct(config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			return outputConfigUpdateResult("Set", args[0], args[1])
		},
	}
}

func newConfigUnsetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unset KEY",
		Short: "Unset a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			if err := unsetConfigValue(config, args[0]); err != nil {
				return err
			}

			if err := saveConfigStruct(config); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			return outputConfigUpdateResult("Unset", args[0], "")
		},
	}
}

// loadConfig builds the configuration from viper, so flags and LXDCTL_*
// environment variables override the file.
func loadConfig() *Config {
	output := viper.GetString("output")
	if output == "" {
		output = constants.FormatTable
	}

	return &Config{
		Remote:        viper.GetString("remote"),
		ClientCert:    viper.GetString("client_cert"),
		ClientKey:     viper.GetString("client_key"),
		ServerCert:    viper.GetString("server_cert"),
		Project:       viper.GetString("project"),
		SkipTLSVerify: viper.GetBool("skip_tls_verify"),
		Output:        output,
		Debug:         viper.GetBool("debug"),
	}
}

func configFilePath() (string, error) {
	if configFile := viper.ConfigFileUsed(); configFile != "" {
		return configFile, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".lxdctl")

	if err := os.MkdirAll(configDir, constants.ConfigDirPerm); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(configDir, "config.yml"), nil
}

func saveConfigStruct(config *Config) error {
	configFile, err := configFilePath()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configFile, data, constants.ConfigFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func setConfigValue(config *Config, key, value string) error {
	switch key {
	case "remote":
		config.Remote = value
	case "client_cert":
		config.ClientCert = value
	case "client_key":
		config.ClientKey = value
	case "server_cert":
		config.ServerCert = value
	case "project":
		config.Project = value
	case "skip_tls_verify":
		config.SkipTLSVerify = parseBoolValue(value)
	case "output":
		if err := validateOutputFormat(value); err != nil {
			return err
		}

		config.Output = value
	case "debug":
		config.Debug = parseBoolValue(value)
	default:
		return fmt.Errorf("%w: %s", constants.ErrUnknownConfigKey, key)
	}

	return nil
}

func unsetConfigValue(config *Config, key string) error {
	switch key {
	case "remote":
		config.Remote = ""
	case "client_cert":
		config.ClientCert = ""
	case "client_key":
		config.ClientKey = ""
	case "server_cert":
		config.ServerCert = ""
	case "project":
		config.Project = ""
	case "skip_tls_verify":
		config.SkipTLSVerify = false
	case "output":
		config.Output = constants.FormatTable
	case "debug":
		config.Debug = false
	default:
		return fmt.Errorf("%w: %s", constants.ErrUnknownConfigKey, key)
	}

	return nil
}

func parseBoolValue(value string) bool {
	return value == constants.BooleanTrue || value == "1"
}

func displayConfigTable(config *Config) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Property", "Value")

	_ = table.Append([]string{"Remote", formatConfigValue(config.Remote)})
	_ = table.Append([]string{"Client Cert", formatConfigValue(config.ClientCert)})
	_ = table.Append([]string{"Client Key", formatConfigValue(config.ClientKey)})
	_ = table.Append([]string{"Server Cert", formatConfigValue(config.ServerCert)})
	_ = table.Append([]string{"Project", formatConfigValue(config.Project)})
	_ = table.Append([]string{"Skip TLS Verify", strconv.FormatBool(config.SkipTLSVerify)})
	_ = table.Append([]string{"Output", config.Output})
	_ = table.Append([]string{"Debug", strconv.FormatBool(config.Debug)})

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

func formatConfigValue(value string) string {
	if value == "" {
		return "(not set)"
	}

	return value
}

func outputConfigUpdateResult(action, key, value string) error {
	result := map[string]string{
		"action": action,
		"key":    key,
	}

	if value != "" {
		result["value"] = value
	}

	return renderOutput(result, func() error {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Property", "Value")

		_ = table.Append([]string{"Action", action})
		_ = table.Append([]string{"Key", key})

		if value != "" {
			_ = table.Append([]string{"Value", value})
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	})
}
