package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the environment-driven service configuration. No process-wide
// singleton: the parsed struct is passed explicitly to New.
type Config struct {
	Env       string `env:"IDENTITY_ENV" envDefault:"development"`
	LogLevel  string `env:"IDENTITY_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"IDENTITY_LOG_FORMAT" envDefault:"json"`

	// DatabaseFile is the sqlite database path.
	DatabaseFile string `env:"IDENTITY_DB_FILE" envDefault:"identity.db"`

	// WalletPepper keys the wallet seed phrase derivation. Required.
	WalletPepper string `env:"IDENTITY_WALLET_PEPPER,required"`

	// NodeTokenKey signs node identity tokens. Required.
	NodeTokenKey    string        `env:"IDENTITY_NODE_TOKEN_KEY,required"`
	NodeTokenIssuer string        `env:"IDENTITY_NODE_TOKEN_ISSUER" envDefault:"edgecoder-identity"`
	NodeTokenTTL    time.Duration `env:"IDENTITY_NODE_TOKEN_TTL" envDefault:"15m"`

	MFAIssuer string `env:"IDENTITY_MFA_ISSUER" envDefault:"EdgeCoder"`

	SessionTTL          time.Duration `env:"IDENTITY_SESSION_TTL" envDefault:"720h"`
	VerificationTTL     time.Duration `env:"IDENTITY_VERIFICATION_TTL" envDefault:"24h"`
	OAuthStateTTL       time.Duration `env:"IDENTITY_OAUTH_STATE_TTL" envDefault:"10m"`
	PasskeyChallengeTTL time.Duration `env:"IDENTITY_PASSKEY_CHALLENGE_TTL" envDefault:"5m"`

	HousekeepingInterval time.Duration `env:"IDENTITY_HOUSEKEEPING_INTERVAL" envDefault:"1h"`
}

// LoadConfig parses Config from the process environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
