package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	App       AppConfig       `env:",prefix=APP_"`
	Server    ServerConfig    `env:",prefix=SERVER_"`
	Postgres  PostgresConfig  `env:",prefix=POSTGRES_"`
	Redis     RedisConfig     `env:",prefix=REDIS_"`
	Session   SessionConfig   `env:",prefix=SESSION_"`
	JWT       JWTConfig       `env:",prefix=JWT_"`
	JWKS      JWKSConfig      `env:",prefix=JWKS_"`
	Security  SecurityConfig  `env:",prefix="`
	MagicLink MagicLinkConfig `env:",prefix=MAGIC_LINK_"`
	OAuth     OAuthConfig     `env:",prefix=OAUTH_"`
	WebAuthn  WebAuthnConfig  `env:",prefix=WEBAUTHN_"`
	Notifier  NotifierConfig  `env:",prefix=NOTIFIER_"`
	CORS      CORSConfig      `env:",prefix=CORS_"`
	Env       string          `env:"ENV,default=development"`
}

type AppConfig struct {
	Name    string `env:"NAME,default=authgate"`
	URL     string `env:"URL,default=http://localhost:8080"`
	HomeURL string `env:"HOME_URL,default=/"`
	// Key signs magic-link URLs.
	Key string `env:"KEY,required"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
}

type PostgresConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=authgate"`
	Password string `env:"PASSWORD,default=authgate_password"`
	DBName   string `env:"DB,default=authgate_db"`
	SSLMode  string `env:"SSLMODE,default=disable"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB,default=0"`
}

type SessionConfig struct {
	CookieName       string   `env:"COOKIE,default=authgate_session"`
	Lifetime         Duration `env:"LIFETIME,default=2h"`
	RememberLifetime Duration `env:"REMEMBER_LIFETIME,default=30d"`
}

// JWTConfig enables RS256 id_token minting when PrivateKey is set.
// PrivateKey accepts inline PEM or a path to a PEM file.
type JWTConfig struct {
	PrivateKey    string   `env:"PRIVATE_KEY"`
	KeyID         string   `env:"KEY_ID,default=authgate-signing-key"`
	IDTokenExpiry Duration `env:"ID_TOKEN_EXPIRY,default=15m"`
}

type JWKSConfig struct {
	PublicKey string `env:"PUBLIC_KEY"`
	KID       string `env:"KID,default=local-signing-key"`
	Alg       string `env:"ALG,default=RS256"`
	Use       string `env:"USE,default=sig"`
}

type SecurityConfig struct {
	BCryptCost        int      `env:"BCRYPT_COST,default=12"`
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=10"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
	LoginMaxAttempts  int      `env:"LOGIN_MAX_ATTEMPTS,default=5"`
	LoginDecay        Duration `env:"LOGIN_DECAY,default=1m"`
}

type MagicLinkConfig struct {
	TTL              Duration         `env:"TTL,default=15m"`
	MaxAttempts      int              `env:"MAX_ATTEMPTS,default=5"`
	Decay            Duration         `env:"DECAY,default=60s"`
	UnverifiedPolicy UnverifiedPolicy `env:"UNVERIFIED_POLICY,default=verify"`
	CleanupInterval  Duration         `env:"CLEANUP_INTERVAL,default=1h"`
	CleanupGrace     Duration         `env:"CLEANUP_GRACE,default=24h"`
}

type OAuthConfig struct {
	Providers        []string             `env:"PROVIDERS,default=github,google"`
	UnverifiedPolicy AccountAdoptionPolicy `env:"UNVERIFIED_ACCOUNT_POLICY,default=reject"`
	StateTTL         Duration             `env:"STATE_TTL,default=10m"`
	GitHub           OAuthClientConfig    `env:",prefix=GITHUB_"`
	GitLab           OAuthClientConfig    `env:",prefix=GITLAB_"`
	Google           OAuthClientConfig    `env:",prefix=GOOGLE_"`
	OIDC             OAuthClientConfig    `env:",prefix=OIDC_"`
}

type OAuthClientConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	// Issuer is used by OpenID Connect providers only.
	Issuer string   `env:"ISSUER"`
	Scopes []string `env:"SCOPES"`
}

// Configured reports whether client credentials are present.
func (c OAuthClientConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type WebAuthnConfig struct {
	RPName       string   `env:"RP_NAME"`
	RPID         string   `env:"RP_ID"`
	ChallengeTTL Duration `env:"CHALLENGE_TTL,default=300s"`
	Timeout      Duration `env:"TIMEOUT,default=60s"`
}

type NotifierConfig struct {
	Driver    string      `env:"DRIVER,default=log"`
	Workers   int         `env:"WORKERS,default=2"`
	QueueSize int         `env:"QUEUE_SIZE,default=100"`
	Timeout   Duration    `env:"TIMEOUT,default=5s"`
	Kafka     KafkaConfig `env:",prefix=KAFKA_"`
}

type KafkaConfig struct {
	Brokers []string `env:"BROKERS"`
	Topic   string   `env:"TOPIC,default=authgate.magic-links"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// URL returns the connection string in URL form, as expected by golang-migrate.
func (p PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%s", p.Host, p.Port),
		Path:     p.DBName,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// IsProduction reports whether production logging and gin release mode apply.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SecureCookies is true everywhere except local development and tests,
// which run over plain http.
func (c *Config) SecureCookies() bool {
	return c.Env != "development" && c.Env != "test"
}

// RelyingPartyID falls back to the host of APP_URL.
func (c *Config) RelyingPartyID() string {
	if c.WebAuthn.RPID != "" {
		return c.WebAuthn.RPID
	}
	u, err := url.Parse(c.App.URL)
	if err != nil || u.Hostname() == "" {
		return "localhost"
	}
	return u.Hostname()
}

// BasePath is the path prefix of APP_URL without a trailing slash, empty when
// the service is mounted at the root.
func (c *Config) BasePath() string {
	u, err := url.Parse(c.App.URL)
	if err != nil {
		return ""
	}
	return strings.TrimRight(u.Path, "/")
}

func (c *Config) RelyingPartyName() string {
	if c.WebAuthn.RPName != "" {
		return c.WebAuthn.RPName
	}
	return c.App.Name
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadWithDefaults loads configuration with default context
func LoadWithDefaults() (*Config, error) {
	return Load(context.Background())
}

// Validate checks values envconfig cannot express as tags.
func (c *Config) Validate() error {
	if len(c.App.Key) < 32 {
		return fmt.Errorf("APP_KEY must be at least 32 characters long")
	}

	if _, err := url.ParseRequestURI(c.App.URL); err != nil {
		return fmt.Errorf("APP_URL is not a valid URL: %w", err)
	}

	if !c.MagicLink.UnverifiedPolicy.Valid() {
		return fmt.Errorf("MAGIC_LINK_UNVERIFIED_POLICY must be one of %q, %q, got %q",
			UnverifiedPolicyVerify, UnverifiedPolicyBlock, c.MagicLink.UnverifiedPolicy)
	}

	if !c.OAuth.UnverifiedPolicy.Valid() {
		return fmt.Errorf("OAUTH_UNVERIFIED_ACCOUNT_POLICY must be one of %q, %q, got %q",
			AccountAdoptionReject, AccountAdoptionAdopt, c.OAuth.UnverifiedPolicy)
	}

	switch strings.ToLower(c.Notifier.Driver) {
	case "log":
	case "kafka":
		if len(c.Notifier.Kafka.Brokers) == 0 {
			return fmt.Errorf("NOTIFIER_KAFKA_BROKERS is required when NOTIFIER_DRIVER=kafka")
		}
	default:
		return fmt.Errorf("NOTIFIER_DRIVER must be log or kafka, got %q", c.Notifier.Driver)
	}

	return nil
}
