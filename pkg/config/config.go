package config

import (
	"time"
)

type DB struct {
	Url          string        `envconfig:"URL"`
	Driver       string        `envconfig:"DRIVER" default:"postgres"`
	LockTimeout  time.Duration `envconfig:"LOCK_TIMEOUT" default:"5s"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
}

type Jwt struct {
	Secret string        `envconfig:"SECRET" required:"true"`
	Expiry time.Duration `envconfig:"EXPIRY" default:"24h"`
}

type Auth struct {
	Jwt *Jwt `envconfig:"JWT"`
}

type Redis struct {
	URL          string        `envconfig:"URL" default:"redis://localhost:6379/0"`
	KeyPrefix    string        `envconfig:"KEY_PREFIX" default:"ledger:"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

type RateLimit struct {
	MaxRequests int           `envconfig:"MAX_REQUESTS" default:"100"`
	Window      time.Duration `envconfig:"WINDOW" default:"1m"`
}

type Log struct {
	Level      int    `envconfig:"LEVEL" default:"0"`
	Format     string `envconfig:"FORMAT" default:"json"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"2006-01-02 15:04:05"`
	Prefix     string `envconfig:"PREFIX" default:"[ledger]"`
}

type Server struct {
	Scheme string `envconfig:"SCHEME" default:"http"`
	Host   string `envconfig:"HOST" default:"localhost"`
	Port   int    `envconfig:"PORT" default:"3000"`
}

type Ledger struct {
	CashAccountID string        `envconfig:"CASH_ACCOUNT_ID" default:"00000000-0000-0000-0000-000000000001"`
	Currency      string        `envconfig:"CURRENCY" default:"USD"`
	MaxRetries    uint64        `envconfig:"MAX_RETRIES" default:"5"`
	RetryInitial  time.Duration `envconfig:"RETRY_INITIAL" default:"50ms"`
	RetryMax      time.Duration `envconfig:"RETRY_MAX" default:"2s"`
}

type Idempotency struct {
	TTL     time.Duration `envconfig:"TTL" default:"24h"`
	LockTTL time.Duration `envconfig:"LOCK_TTL" default:"30s"`
	Locker  string        `envconfig:"LOCKER" default:"memory"`
}

type Audit struct {
	CriticalRatio float64       `envconfig:"CRITICAL_RATIO" default:"0.05"`
	Interval      time.Duration `envconfig:"INTERVAL" default:"0s"`
}

type Recon struct {
	AmountWeight        float64 `envconfig:"AMOUNT_WEIGHT" default:"50"`
	DateWeight          float64 `envconfig:"DATE_WEIGHT" default:"30"`
	DatePenaltyPerDay   float64 `envconfig:"DATE_PENALTY_PER_DAY" default:"10"`
	DateCutoffDays      int     `envconfig:"DATE_CUTOFF_DAYS" default:"3"`
	DescriptionWeight   float64 `envconfig:"DESCRIPTION_WEIGHT" default:"20"`
	AutoMatchThreshold  float64 `envconfig:"AUTO_MATCH_THRESHOLD" default:"85"`
	SuggestionThreshold float64 `envconfig:"SUGGESTION_THRESHOLD" default:"60"`
	DateWindowDays      int     `envconfig:"DATE_WINDOW_DAYS" default:"3"`
	AmountTolerance     string  `envconfig:"AMOUNT_TOLERANCE" default:"0.005"`
}

type Outbox struct {
	Bus             string        `envconfig:"BUS" default:"memory"`
	Stream          string        `envconfig:"STREAM" default:"ledger-events"`
	Group           string        `envconfig:"GROUP" default:"ledger"`
	Interval        time.Duration `envconfig:"INTERVAL" default:"1s"`
	BatchSize       int           `envconfig:"BATCH_SIZE" default:"100"`
	MaxAttempts     int           `envconfig:"MAX_ATTEMPTS" default:"10"`
	BreakerFailures uint32        `envconfig:"BREAKER_FAILURES" default:"5"`
	BreakerTimeout  time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`
}

type App struct {
	Env         string       `envconfig:"APP_ENV" default:"development"`
	Server      *Server      `envconfig:"SERVER"`
	Log         *Log         `envconfig:"LOG"`
	DB          *DB          `envconfig:"DATABASE"`
	Auth        *Auth        `envconfig:"AUTH"`
	Redis       *Redis       `envconfig:"REDIS"`
	RateLimit   *RateLimit   `envconfig:"RATE_LIMIT"`
	Ledger      *Ledger      `envconfig:"LEDGER"`
	Idempotency *Idempotency `envconfig:"IDEMPOTENCY"`
	Audit       *Audit       `envconfig:"AUDIT"`
	Recon       *Recon       `envconfig:"RECON"`
	Outbox      *Outbox      `envconfig:"OUTBOX"`
}
