//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// TestConfig holds configuration for integration tests
type TestConfig struct {
	Endpoint   string
	ClientCert string
	ClientKey  string
	ServerCert string
	Image      string
	LxdctlPath string
	Verbose    bool
}

// LoadTestConfig loads configuration from environment variables
func LoadTestConfig() *TestConfig {
	image := os.Getenv("LXD_TEST_IMAGE")
	if image == "" {
		image = "ubuntu/24.04"
	}

	return &TestConfig{
		Endpoint:   os.Getenv("LXD_ENDPOINT"),
		ClientCert: os.Getenv("LXD_CLIENT_CERT"),
		ClientKey:  os.Getenv("LXD_CLIENT_KEY"),
		ServerCert: os.Getenv("LXD_SERVER_CERT"),
		Image:      image,
		LxdctlPath: getLxdctlPath(),
		Verbose:    os.Getenv("LXDCTL_VERBOSE") == "true",
	}
}

func getLxdctlPath() string {
	if path := os.Getenv("LXDCTL_BINARY_PATH"); path != "" {
		return path
	}

	for _, candidate := range []string{"../../lxdctl", "./lxdctl", "../lxdctl"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "lxdctl"
}

// SkipIfMissingConfig skips the test unless a server and client identity are configured.
func (config *TestConfig) SkipIfMissingConfig(t *testing.T) {
	t.Helper()

	if config.Endpoint == "" {
		t.Skip("LXD_ENDPOINT not set, skipping integration test")
	}

	if config.ClientCert == "" || config.ClientKey == "" {
		t.Skip("LXD_CLIENT_CERT and LXD_CLIENT_KEY must be set, skipping integration test")
	}
}

// SkipIfMissingBinary skips the test when the lxdctl binary cannot be found.
func (config *TestConfig) SkipIfMissingBinary(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath(config.LxdctlPath); err != nil {
		t.Skipf("lxdctl binary not found at %s, skipping integration test", config.LxdctlPath)
	}
}

// CommandRunner runs lxdctl against the configured remote.
type CommandRunner struct {
	config *TestConfig
	t      *testing.T
}

// NewCommandRunner creates a new command runner
func NewCommandRunner(config *TestConfig, t *testing.T) *CommandRunner {
	return &CommandRunner{
		config: config,
		t:      t,
	}
}

// Run executes an lxdctl command and returns its output. The remote and
// certificates are passed through LXDCTL_* variables so no config file is
// touched.
func (runner *CommandRunner) Run(args ...string) (stdout, stderr string, err error) {
	cmd := exec.Command(runner.config.LxdctlPath, args...) // #nosec G204
	cmd.Env = append(os.Environ(),
		"LXDCTL_REMOTE="+runner.config.Endpoint,
		"LXDCTL_CLIENT_CERT="+runner.config.ClientCert,
		"LXDCTL_CLIENT_KEY="+runner.config.ClientKey,
		"LXDCTL_SERVER_CERT="+runner.config.ServerCert,
		"LXDCTL_CONFIG="+runner.t.TempDir()+"/config.yml",
	)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if runner.config.Verbose {
		runner.t.Logf("Running: %s %s", runner.config.LxdctlPath, strings.Join(args, " "))
	}

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runner.config.Verbose && err != nil {
		runner.t.Logf("Command failed: %v\nStdout: %s\nStderr: %s", err, stdout, stderr)
	}

	return stdout, stderr, err
}

// GenerateTestName returns a name unique to this run. LXD names may not
// contain dots or underscores.
func GenerateTestName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano()%1_000_000_000)
}

// CleanupResource attempts to delete a test resource
func (runner *CommandRunner) CleanupResource(resourceType, name string) {
	var args []string

	switch resourceType {
	case "instance":
		args = []string{"instances", "delete", name, "--force"}
	case "network":
		args = []string{"networks", "delete", name}
	case "storage":
		args = []string{"storage", "delete", name}
	default:
		runner.t.Logf("Unknown resource type for cleanup: %s", resourceType)

		return
	}

	if _, stderr, err := runner.Run(args...); err != nil && runner.config.Verbose {
		runner.t.Logf("Cleanup of %s %s failed: %s", resourceType, name, stderr)
	}
}

// AssertJSONOutput verifies command output is valid JSON
func AssertJSONOutput(t *testing.T, output string) {
	t.Helper()

	if !json.Valid([]byte(strings.TrimSpace(output))) {
		t.Errorf("Output is not valid JSON: %s", output)
	}
}

// AssertYAMLOutput verifies command output is valid YAML
func AssertYAMLOutput(t *testing.T, output string) {
	t.Helper()

	var decoded interface{}
	if err := yaml.Unmarshal([]byte(output), &decoded); err != nil || decoded == nil {
		t.Errorf("Output is not valid YAML: %s", output)
	}
}
