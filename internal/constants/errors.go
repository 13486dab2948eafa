package constants

import "errors"

// Remote and configuration errors.
var (
	ErrNoRemoteConfigured  = errors.New("no remote configured, use 'lxdctl config set remote <url>' to set one")
	ErrUnknownConfigKey    = errors.New("unknown configuration key")
	ErrSkipTLSOnlyInDev    = errors.New("skip_tls_verify is only allowed in development environments (set LXD_CLIENT_DEV_MODE=true)")
	ErrInvalidOutputFormat = errors.New("invalid output format, expected table, json or yaml")
	ErrInvalidKeyValue     = errors.New("invalid key=value pair")
)

// Command argument errors.
var (
	ErrImageRequired       = errors.New("an image alias or fingerprint is required")
	ErrDriverRequired      = errors.New("a storage driver is required")
	ErrCertificateRequired = errors.New("a certificate file or a trust password is required")
	ErrNATSURLRequired     = errors.New("a NATS server URL is required")
)
