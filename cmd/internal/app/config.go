package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogPretty bool

	// Production gates Secure cookies and strips error detail from
	// responses. Set via PINBOARD_ENV=production.
	Production bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// AuthStrategy is "bearer" or "session"; one per deployment.
	AuthStrategy string
	JWTSecret    string
	AccessTTL    time.Duration

	RefreshTTL        time.Duration
	RefreshTokenBytes int
	SessionTTL        time.Duration
	SessionRolling    bool
	LoginMax          int
	LoginWindow       time.Duration
	SweepInterval     time.Duration

	// AllowedOrigin is the browser origin admitted by CORS and the
	// websocket gateway.
	AllowedOrigin string

	// If true, /readyz returns 503 unless the DB is reachable.
	ReadinessRequireDB bool

	// If true, PINBOARD_TOKEN_HMAC_KEY must be set (>= 32 bytes) so
	// stored refresh digests are HMAC-keyed rather than plain SHA-256.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	env := EnvString("PINBOARD_ENV", "dev")

	return Config{
		HTTPAddr:  EnvString("PINBOARD_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("PINBOARD_LOG_LEVEL", "info"),
		LogPretty: EnvBool("PINBOARD_LOG_PRETTY", false),

		Production: env == "production",

		ReadHeaderTimeout: EnvDuration("PINBOARD_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("PINBOARD_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("PINBOARD_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("PINBOARD_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("PINBOARD_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("PINBOARD_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("PINBOARD_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("PINBOARD_DB_MIN_CONNS", 0),

		RedisAddr:     EnvString("PINBOARD_REDIS_ADDR", ""),
		RedisPassword: EnvString("PINBOARD_REDIS_PASSWORD", ""),
		RedisDB:       EnvInt("PINBOARD_REDIS_DB", 0),

		AuthStrategy: EnvString("PINBOARD_AUTH_STRATEGY", "bearer"),
		JWTSecret:    EnvString("PINBOARD_JWT_SECRET", ""),
		AccessTTL:    EnvDuration("PINBOARD_ACCESS_TTL", 15*time.Minute),

		RefreshTTL:        EnvDuration("PINBOARD_REFRESH_TTL", 7*24*time.Hour),
		RefreshTokenBytes: EnvInt("PINBOARD_REFRESH_TOKEN_BYTES", 40),
		SessionTTL:        EnvDuration("PINBOARD_SESSION_TTL", 24*time.Hour),
		SessionRolling:    EnvBool("PINBOARD_SESSION_ROLLING", true),
		LoginMax:          EnvInt("PINBOARD_LOGIN_MAX", 5),
		LoginWindow:       EnvDuration("PINBOARD_LOGIN_WINDOW", 15*time.Minute),
		SweepInterval:     EnvDuration("PINBOARD_SWEEP_INTERVAL", time.Hour),

		AllowedOrigin: EnvString("PINBOARD_ALLOWED_ORIGIN", "http://localhost:5173"),

		ReadinessRequireDB: EnvBool("PINBOARD_READINESS_REQUIRE_DB", false),
		RequireTokenHMAC:   EnvBool("PINBOARD_REQUIRE_TOKEN_HMAC", env == "production"),
	}
}
