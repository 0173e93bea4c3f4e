package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	StoreBackend string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	SQLitePath string
	MongoURI   string
	MongoDB    string
	RedisAddr  string

	TrustListPath string
	HTTPAddr      string
	ExtractMode   string

	MaxConcurrency  int
	RateLimitMs     int
	MaxRetries      int
	StaticTimeoutMs int
	RenderTimeoutMs int
	JobTimeoutMs    int
	MinHTMLBytes    int

	Renderer       string
	ChromeBin      string
	UserAgent      string
	DebugSnapshots bool
	Verbose        bool
}

// DefaultUserAgent is sent by both the static fetcher and the renderers.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "leilao"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "leilao123"),
		PostgresDB:       getEnv("POSTGRES_DB", "leilao_insights"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		SQLitePath: getEnv("SQLITE_PATH", "./data/leilao.db"),
		MongoURI:   getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:    getEnv("MONGO_DB", "leilao_insights"),
		RedisAddr:  getEnv("REDIS_ADDR", ""),

		TrustListPath: getEnv("TRUST_LIST_PATH", "./configs/trust_lists.yaml"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		ExtractMode:   strings.ToLower(getEnv("EXTRACT_MODE", "async")),

		MaxConcurrency:  getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:     getEnvInt("RATE_LIMIT_MS", 500),
		MaxRetries:      getEnvInt("MAX_RETRIES", 2),
		StaticTimeoutMs: getEnvInt("STATIC_TIMEOUT_MS", 10000),
		RenderTimeoutMs: getEnvInt("RENDER_TIMEOUT_MS", 30000),
		JobTimeoutMs:    getEnvInt("JOB_TIMEOUT_MS", 90000),
		MinHTMLBytes:    getEnvInt("MIN_HTML_BYTES", 1000),

		Renderer:       strings.ToLower(getEnv("RENDERER", "chromedp")),
		ChromeBin:      getEnv("CHROME_BIN", ""),
		UserAgent:      getEnv("USER_AGENT", DefaultUserAgent),
		DebugSnapshots: getEnvBool("DEBUG_SNAPSHOTS", true),
		Verbose:        getEnvBool("VERBOSE", false),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// Async reports whether cache misses are extracted in the background.
func (c *Config) Async() bool { return c.ExtractMode != "sync" }

func (c *Config) StaticTimeout() time.Duration { return ms(c.StaticTimeoutMs) }
func (c *Config) RenderTimeout() time.Duration { return ms(c.RenderTimeoutMs) }
func (c *Config) JobTimeout() time.Duration    { return ms(c.JobTimeoutMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
