package config

import "os"

const (
	defaultTrustStorePath = "/etc/verified-container/trust-store.json"
	defaultCacheDir       = "/var/cache/verified-container"
	defaultAuditLogPath   = "/var/log/verified-container/audit.log"
)

// Config holds the engine's environment-derived configuration. Unknown
// environment variables are ignored; every field has a default matching
// the reference deployment layout.
type Config struct {
	TrustStorePath string
	CacheDir       string
	AuditLogPath   string

	// OperatorJWTSecret, when non-empty, requires callers invoking a
	// non-Strict mode to present a valid HMAC-signed operator token.
	// Empty means operator-auth is not enforced.
	OperatorJWTSecret string
}

// Load reads configuration from environment variables.
func Load() *Config {
	trustStorePath := os.Getenv("TRUST_STORE_PATH")
	if trustStorePath == "" {
		trustStorePath = defaultTrustStorePath
	}

	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		cacheDir = defaultCacheDir
	}

	auditLogPath := os.Getenv("AUDIT_LOG_PATH")
	if auditLogPath == "" {
		auditLogPath = defaultAuditLogPath
	}

	return &Config{
		TrustStorePath:    trustStorePath,
		CacheDir:          cacheDir,
		AuditLogPath:      auditLogPath,
		OperatorJWTSecret: os.Getenv("OPERATOR_JWT_SECRET"),
	}
}
