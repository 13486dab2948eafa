package lxd

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"code.cloudfoundry.org/tlsconfig"
)

// DevModeEnv must be "true" or "1" for SkipTLSVerify to be honoured.
const DevModeEnv = "LXD_CLIENT_DEV_MODE"

// TLSConfig builds the client side of the mutual TLS session from config.
// The client identity is optional so that an untrusted client can still
// reach the server to add itself to the trust store.
func TLSConfig(config *Config) (*tls.Config, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}

	// LXD generates ECDSA certificates, which the internal-service cipher
	// suites cannot negotiate over TLS 1.2.
	tlsOpts := []tlsconfig.TLSOption{tlsconfig.WithExternalServiceDefaults()}

	identity, err := clientIdentity(config)
	if err != nil {
		return nil, err
	}

	if identity != nil {
		tlsOpts = append(tlsOpts, tlsconfig.WithIdentity(*identity))
	}

	var clientOpts []tlsconfig.ClientOption

	serverCert, err := serverCertificate(config)
	if err != nil {
		return nil, err
	}

	if serverCert != nil {
		clientOpts = append(clientOpts, tlsconfig.WithAuthorityBuilder(
			tlsconfig.FromEmptyPool(tlsconfig.WithCert(serverCert)),
		))

		// Server certificates are usually issued for the host name rather
		// than the address the client dials.
		if len(serverCert.DNSNames) > 0 {
			clientOpts = append(clientOpts, tlsconfig.WithServerName(serverCert.DNSNames[0]))
		}
	}

	tlsConfig, err := tlsconfig.Build(tlsOpts...).Client(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("building TLS config: %w", err)
	}

	if config.SkipTLSVerify {
		if !isDevelopmentEnvironment() {
			return nil, fmt.Errorf("%w (set %s=true)", ErrSkipTLSOnlyInDev, DevModeEnv)
		}

		tlsConfig.InsecureSkipVerify = true // #nosec G402 -- guarded by the development environment check above
	}

	return tlsConfig, nil
}

func clientIdentity(config *Config) (*tls.Certificate, error) {
	certPEM, err := pemMaterial(config.ClientCert, config.ClientCertFile)
	if err != nil {
		return nil, fmt.Errorf("reading client certificate: %w", err)
	}

	keyPEM, err := pemMaterial(config.ClientKey, config.ClientKeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading client key: %w", err)
	}

	if len(certPEM) == 0 && len(keyPEM) == 0 {
		return nil, nil
	}

	if len(certPEM) == 0 || len(keyPEM) == 0 {
		return nil, ErrIncompleteKeyPair
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("loading client key pair: %w", err)
	}

	return &cert, nil
}

func serverCertificate(config *Config) (*x509.Certificate, error) {
	certPEM, err := pemMaterial(config.ServerCert, config.ServerCertFile)
	if err != nil {
		return nil, fmt.Errorf("reading server certificate: %w", err)
	}

	if len(certPEM) == 0 {
		return nil, nil
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, ErrInvalidServerCertificate
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidServerCertificate, err)
	}

	return cert, nil
}

func pemMaterial(inline, path string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}

	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the caller's configuration
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return data, nil
}

func isDevelopmentEnvironment() bool {
	devMode := os.Getenv(DevModeEnv)

	return devMode == "true" || devMode == "1"
}
