// Package verifycache skips re-verification of a bundle/trust-store pair
// that already passed within a TTL window. It is a directory of small
// sentinel files, one per cache key, written with atomic replace
// semantics so that racing writers never observe a half-written file.
package verifycache

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hyperpolymath/verified-container-spec/pkg/ctperrors"
)

const (
	ttl      = 3600 * time.Second
	sentinel = "VERIFIED"

	// missRate bounds how often a single image digest may re-enter the
	// expensive checks after a cache miss, so a caller that retries a
	// permanently-failing digest in a tight loop can't turn every
	// verification attempt into a full cryptographic re-check.
	missRate  = 1 // per second
	missBurst = 5
)

// Cache is a handle to a cache directory.
type Cache struct {
	dir string

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// New returns a Cache rooted at dir. The directory is created lazily on
// the first write, not here.
func New(dir string) *Cache {
	return &Cache{dir: dir, limiters: map[string]*rate.Limiter{}}
}

// AllowMiss reports whether a cache-miss re-evaluation for imageDigest
// may proceed right now, per a token-bucket limiter scoped to that
// digest. Callers that exceed the rate should treat the result as a
// transient failure, not a verification rejection.
func (c *Cache) AllowMiss(imageDigest string) bool {
	c.limiterMu.Lock()
	limiter, ok := c.limiters[imageDigest]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(missRate), missBurst)
		c.limiters[imageDigest] = limiter
	}
	c.limiterMu.Unlock()
	return limiter.Allow()
}

func (c *Cache) path(imageDigest, fingerprint string) string {
	return filepath.Join(c.dir, imageDigest+"-"+fingerprint+".cache")
}

// Hit reports whether a live (non-expired) cache entry exists for the
// given image digest and trust-store fingerprint. An expired entry is
// deleted as a side effect of being observed, per the lazy-cleanup
// contract: no background sweeper is required.
func (c *Cache) Hit(imageDigest, fingerprint string) (bool, error) {
	path := c.path(imageDigest, fingerprint)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, ctperrors.Wrap(ctperrors.KindMalformedBundle, "stat cache entry", err)
	}

	if time.Since(info.ModTime()) > ttl {
		_ = os.Remove(path)
		return false, nil
	}
	return true, nil
}

// Put records a successful verification. Only called on an ALLOW
// decision — failures are never cached, so that a trust-store update
// takes effect immediately on the next attempt against a previously
// rejected bundle.
func (c *Cache) Put(imageDigest, fingerprint string) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return ctperrors.Wrap(ctperrors.KindMalformedBundle, "creating cache directory", err)
	}

	tmp, err := os.CreateTemp(c.dir, "verifycache-*.tmp")
	if err != nil {
		return ctperrors.Wrap(ctperrors.KindMalformedBundle, "creating cache temp file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(sentinel); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return ctperrors.Wrap(ctperrors.KindMalformedBundle, "writing cache temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return ctperrors.Wrap(ctperrors.KindMalformedBundle, "closing cache temp file", err)
	}

	// Rename is atomic on the same filesystem: concurrent writers racing
	// for the same key each produce a valid final file, never a partial one.
	if err := os.Rename(tmpPath, c.path(imageDigest, fingerprint)); err != nil {
		os.Remove(tmpPath)
		return ctperrors.Wrap(ctperrors.KindMalformedBundle, "replacing cache entry", err)
	}
	return nil
}
