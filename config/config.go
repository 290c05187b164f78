package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fiffu/verimail/lib/policy"
	"github.com/ulule/limiter/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const EnvDevelopment = "development"

type Config struct {
	Env              string `env:"ENVIRONMENT" envDefault:"development"`
	ServerPort       int    `env:"SERVER_PORT" envDefault:"8080"`
	ServerDNS        string `env:"SERVER_DNS" envDefault:"http://localhost:8080"`
	BasicAuthCreds   string `env:"BASIC_AUTH_CREDS"`
	HashSalt         string `env:"HASH_SALT"`
	RequestRateLimit string `env:"REQUEST_RATE_LIMIT" envDefault:"5-H"`

	Site struct {
		Name          string `env:"SITE_NAME" envDefault:"verimail"`
		Mail          string `env:"SITE_MAIL"`
		DefaultLocale string `env:"DEFAULT_LOCALE" envDefault:"en"`
	}
	Database struct {
		Driver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
		DSN    string `env:"DATABASE_DSN" envDefault:"verimail.sqlite"`
	}
	Scheduler struct {
		WakeupInterval  time.Duration `env:"SCHEDULER_WAKEUP_INTERVAL" envDefault:"1h"`
		TickTimeout     time.Duration `env:"SCHEDULER_TICK_TIMEOUT" envDefault:"5m"`
		BlockBatchSize  int           `env:"BLOCK_BATCH_SIZE" envDefault:"10"`
		RemindBatchSize int           `env:"REMIND_BATCH_SIZE" envDefault:"10"`
		DeleteBatchSize int           `env:"DELETE_BATCH_SIZE" envDefault:"10"`
	}
	Queue struct {
		NATSURL string `env:"NATS_URL"`
		Stream  string `env:"NATS_STREAM" envDefault:"VERIFICATION"`

		Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"5"`
	}
	Accounts struct {
		Source       string `env:"ACCOUNTS_SOURCE" envDefault:"local"`
		APIURL       string `env:"ACCOUNTS_API_URL"`
		APIToken     string `env:"ACCOUNTS_API_TOKEN"`
		CancelMethod string `env:"ACCOUNT_CANCEL_METHOD" envDefault:"block"`
	}
	Mail struct {
		Provider    string `env:"MAIL_PROVIDER" envDefault:"log"`
		From        string `env:"MAIL_FROM" envDefault:"noreply@localhost"`
		TimeoutSecs int    `env:"MAIL_TIMEOUT_SECS" envDefault:"10"`
	}
	Mailgun struct {
		Domain string `env:"MAILGUN_DOMAIN"`
		APIKey string `env:"MAILGUN_API_KEY"`
	}
	SMTP struct {
		Host     string `env:"SMTP_HOST"`
		Port     int    `env:"SMTP_PORT" envDefault:"587"`
		Username string `env:"SMTP_USERNAME"`
		Password string `env:"SMTP_PASSWORD"`
		TLS      bool   `env:"SMTP_TLS" envDefault:"true"`
	}

	Verification policy.Settings

	log   *zap.Logger
	creds map[string]string
}

func NewConfig(log *zap.Logger) (*Config, error) {
	cfg := &Config{log: log}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	creds, err := cfg.parseCreds()
	switch {
	case err == nil:
	case cfg.BasicAuthCreds != "":
		return nil, err
	case cfg.IsDevelopment():
		log.Sugar().Infof("%s (credentials are set to default in development env)", err)
		creds = map[string]string{"admin": "password"}
	default:
		log.Sugar().Warnf("%s; admin API is disabled", err)
	}
	cfg.creds = creds

	return cfg, nil
}

func (cfg *Config) IsDevelopment() bool {
	return cfg.Env == EnvDevelopment
}

func (cfg *Config) Validate() error {
	var err error
	if cfg.HashSalt == "" && !cfg.IsDevelopment() {
		err = multierr.Append(err, errors.New("HASH_SALT must be set outside development"))
	}
	if cfg.Verification.ValidateInterval <= 0 {
		err = multierr.Append(err, errors.New("VALIDATE_INTERVAL must be positive"))
	}
	if cfg.Verification.NumReminders < 0 {
		err = multierr.Append(err, errors.New("NUM_REMINDERS must not be negative"))
	}
	if cfg.Verification.ExtendedEnabled && cfg.Verification.ExtendedValidateInterval <= 0 {
		err = multierr.Append(err, errors.New("EXTENDED_VALIDATE_INTERVAL must be positive when EXTENDED_ENABLE is set"))
	}
	for name, size := range map[string]int{
		"BLOCK_BATCH_SIZE":  cfg.Scheduler.BlockBatchSize,
		"REMIND_BATCH_SIZE": cfg.Scheduler.RemindBatchSize,
		"DELETE_BATCH_SIZE": cfg.Scheduler.DeleteBatchSize,
	} {
		if size <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be positive", name))
		}
	}
	if cfg.Scheduler.WakeupInterval <= 0 {
		err = multierr.Append(err, errors.New("SCHEDULER_WAKEUP_INTERVAL must be positive"))
	}
	if _, rerr := limiter.NewRateFromFormatted(cfg.RequestRateLimit); rerr != nil {
		err = multierr.Append(err, fmt.Errorf("REQUEST_RATE_LIMIT: %w", rerr))
	}
	if cfg.Accounts.Source == "remote" && cfg.Accounts.APIURL == "" {
		err = multierr.Append(err, errors.New("ACCOUNTS_API_URL is required when ACCOUNTS_SOURCE=remote"))
	}
	return err
}

// Salt is the server secret for link signatures. Development falls back to a
// fixed value so links survive restarts.
func (cfg *Config) Salt() string {
	if cfg.HashSalt == "" {
		return "verimail-development-salt"
	}
	return cfg.HashSalt
}

func (cfg *Config) Policy() *policy.Policy {
	return policy.New(cfg.Verification)
}

// RequestRate is the per-client limit on link requests. Validate has already
// rejected malformed values.
func (cfg *Config) RequestRate() limiter.Rate {
	rate, _ := limiter.NewRateFromFormatted(cfg.RequestRateLimit)
	return rate
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.BasicAuthCreds == "" {
		return nil, errors.New("BASIC_AUTH_CREDS envvar must be populated")
	}

	result := make(map[string]string)
	for _, cred := range strings.Split(cfg.BasicAuthCreds, ",") {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := strings.TrimSpace(userPass[0]), strings.TrimSpace(userPass[1])
		if user == "" || pass == "" {
			return nil, fmt.Errorf("failed to parse '%s', user and password must not be empty", cred)
		}
		result[user] = pass
	}

	return result, nil
}
