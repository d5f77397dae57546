// Package config contains the default settings shared by the algorank
// binaries.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/algorank/algorank-node/db"
)

const (
	// DefaultAppID is the application served and reconciled by default.
	DefaultAppID = 1015
	// DefaultLedgerURL is the address the oracle reaches the ledger API on.
	DefaultLedgerURL = "http://localhost:8980"
	// DefaultAPIHost is the interface the ledger API listens on.
	DefaultAPIHost = "0.0.0.0"
	// DefaultAPIPort is the port the ledger API listens on.
	DefaultAPIPort = 8980
	// DefaultDBType is the storage backend of the ledger node.
	DefaultDBType = db.TypePebble
	// DefaultLogLevel and DefaultLogOutput configure the logger.
	DefaultLogLevel  = "info"
	DefaultLogOutput = "stdout"
	// EnvPrefix prefixes every environment variable read by the binaries.
	EnvPrefix = "ALGORANK"

	defaultDatadir = ".algorank" // Will be prefixed with user's home directory
)

// Version is the build version, set at build time with -ldflags.
var Version = "dev"

// DefaultDatadir returns the data directory under the user home, or under
// the working directory if the home cannot be resolved.
func DefaultDatadir() string {
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	return filepath.Join(userHomeDir, defaultDatadir)
}

// EnvKeyReplacer maps configuration keys to environment variable suffixes.
func EnvKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
