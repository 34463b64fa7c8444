package hoard

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Keksclan/hoard/breaker"
)

const (
	// DefaultMemoryCapacity is the memory-tier entry limit used when no
	// WithMemoryCapacity option is given.
	DefaultMemoryCapacity = 50

	// DefaultFetchTimeout bounds each network retrieval. The deadline
	// cancels the retrieval through the same path as an explicit Cancel.
	DefaultFetchTimeout = 30 * time.Second
)

// DefaultDir returns the directory the default filesystem store persists
// under: a "hoard" subdirectory of the user cache directory, or of the
// system temp directory when no user cache directory is known.
func DefaultDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "hoard")
}

// DefaultOptions returns the recommended set of options for production use.
// Currently this enables a circuit breaker with default thresholds, so a
// failing origin is backed off instead of hammered; additional defaults may
// be added in future versions.
func DefaultOptions() []Option {
	return []Option{
		WithBreaker(breaker.Config{}),
	}
}
