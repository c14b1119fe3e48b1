package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuracion del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	CatalogPath string `env:"CATALOG_PATH"`

	LLMProvider      string        `env:"LLM_PROVIDER" envDefault:"keyword"`
	LLMAPIKey        string        `env:"LLM_API_KEY"`
	LLMBaseURL       string        `env:"LLM_BASE_URL"`
	LLMModel         string        `env:"LLM_MODEL"`
	EmbeddingModel   string        `env:"EMBEDDING_MODEL"`
	LLMMaxAttempts   int           `env:"LLM_MAX_ATTEMPTS" envDefault:"2"`
	InterpretTimeout time.Duration `env:"INTERPRET_TIMEOUT" envDefault:"8s"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	ReviewerEmails []string `env:"REVIEWER_EMAILS" envSeparator:","`
	PublicBaseURL  string   `env:"PUBLIC_BASE_URL"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"10080"`

	SharingCodeSalt       string        `env:"SHARING_CODE_SALT" envDefault:"sdq-screen"`
	SelfReportMinAge      int           `env:"SELF_REPORT_MIN_AGE" envDefault:"11"`
	ReviewRequireAllRoles bool          `env:"REVIEW_REQUIRE_ALL_ROLES" envDefault:"false"`
	RespondRateLimit      int           `env:"RESPOND_RATE_LIMIT" envDefault:"30"`
	RespondRateWindow     time.Duration `env:"RESPOND_RATE_WINDOW" envDefault:"1m"`
}

// LoadConfig carga la configuracion desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
