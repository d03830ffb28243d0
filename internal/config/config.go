package config

import (
	"fmt"
	"log"
	"os"
	"time"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env             string
	HTTPPort        string
	DatabaseURL     string
	RedisAddr       string
	JWTIssuer       string
	JWTSigningKey   string
	SessionTTL      time.Duration
	SweepInterval   time.Duration
	OpTimeout       time.Duration
	FaceServiceURL  string
	FaceSkip        bool
	FaceThreshold   float64
	FenceLat        float64
	FenceLng        float64
	FenceRadius     float64
	QueueBackend    string
	RateLimitPerMin int
	LogLevel        string
	LogFormat       string
}

// Load returns application config populated from environment variables with
// sensible defaults. Session TTL defaults to seven days, matching token
// expiry; OpTimeout bounds every store and verifier call in the pipeline.
func Load() App {
	return App{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", "8081"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		JWTIssuer:       getEnv("JWT_ISSUER", "presence"),
		JWTSigningKey:   getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		SessionTTL:      durationEnv("SESSION_TTL", 7*24*time.Hour),
		SweepInterval:   durationEnv("SESSION_SWEEP_INTERVAL", time.Hour),
		OpTimeout:       durationEnv("OP_TIMEOUT", 5*time.Second),
		FaceServiceURL:  getEnv("FACE_SERVICE_URL", "http://localhost:8000"),
		FaceSkip:        boolEnv("FACE_SKIP", true),
		FaceThreshold:   floatEnv("FACE_THRESHOLD", 0.80),
		FenceLat:        floatEnv("FENCE_LAT", 40.7128),
		FenceLng:        floatEnv("FENCE_LNG", -74.0060),
		FenceRadius:     floatEnv("FENCE_RADIUS_M", 100),
		QueueBackend:    getEnv("QUEUE_BACKEND", "redis"),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 120),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		switch val {
		case "1", "true", "TRUE":
			return true
		case "0", "false", "FALSE":
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

func floatEnv(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		var parsed float64
		if _, err := fmt.Sscanf(val, "%g", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid float for %s, using fallback %g", key, fallback)
	}
	return fallback
}
