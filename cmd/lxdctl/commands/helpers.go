package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/fivetwenty-io/lxd-client/internal/constants"
)

// parseKeyValues turns ["a=b", "c=d"] into a map.
func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	values := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("%w: %q", constants.ErrInvalidKeyValue, pair)
		}

		values[key] = value
	}

	return values, nil
}

// mergeConfig applies updates to base; an empty value removes the key.
func mergeConfig(base, updates map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(updates))

	for key, value := range base {
		merged[key] = value
	}

	for key, value := range updates {
		if value == "" {
			delete(merged, key)

			continue
		}

		merged[key] = value
	}

	return merged
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return constants.NotAvailable
	}

	return t.Format("2006-01-02 15:04:05")
}

func shortFingerprint(fingerprint string) string {
	if len(fingerprint) > constants.FingerprintDisplayLength {
		return fingerprint[:constants.FingerprintDisplayLength]
	}

	return fingerprint
}

func formatBytes(size int64) string {
	const unit = 1024

	if size < unit {
		return fmt.Sprintf("%dB", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.2f%ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
