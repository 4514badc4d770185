// Package env reads process settings that must be known before config.Load,
// such as the log format.
package env

import (
	"os"
	"strings"
)

// Prefix namespaces every lootbay setting.
const Prefix = "LOOTBAY_"

// Get returns LOOTBAY_<key>, then the bare key, then fallback. Blank values
// count as unset.
func Get(key, fallback string) string {
	key = strings.TrimPrefix(key, Prefix)
	for _, name := range []string{Prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}
