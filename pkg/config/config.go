package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "marcus"

	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App       AppConfig
	Adapter   AdapterConfig
	GoogleAds GoogleAdsConfig
	MetaAds   MetaAdsConfig
	DB        DBConfig
	Redis     RedisConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	BigQuery  BigQueryConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARCUS_APP_ENV" default:"development"`
	Port         string `envconfig:"MARCUS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MARCUS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARCUS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AdapterConfig tunes the shared behavior of all platform adapters.
type AdapterConfig struct {
	RequestTimeout time.Duration `envconfig:"MARCUS_ADAPTER_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries     int           `envconfig:"MARCUS_ADAPTER_MAX_RETRIES" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"MARCUS_ADAPTER_RETRY_BASE_DELAY" default:"500ms"`
	RetryMaxDelay  time.Duration `envconfig:"MARCUS_ADAPTER_RETRY_MAX_DELAY" default:"8s"`
	QuotaPerMinute int           `envconfig:"MARCUS_ADAPTER_QUOTA_PER_MINUTE" default:"0"`
}

type GoogleAdsConfig struct {
	ClientID        string `envconfig:"MARCUS_GOOGLE_ADS_CLIENT_ID"`
	ClientSecret    string `envconfig:"MARCUS_GOOGLE_ADS_CLIENT_SECRET"`
	DeveloperToken  string `envconfig:"MARCUS_GOOGLE_ADS_DEVELOPER_TOKEN"`
	RefreshToken    string `envconfig:"MARCUS_GOOGLE_ADS_REFRESH_TOKEN"`
	CustomerID      string `envconfig:"MARCUS_GOOGLE_ADS_CUSTOMER_ID"`
	LoginCustomerID string `envconfig:"MARCUS_GOOGLE_ADS_LOGIN_CUSTOMER_ID"`
	DailyBudget     string `envconfig:"MARCUS_GOOGLE_ADS_DAILY_BUDGET"`
}

// Configured reports whether the platform has any credential material at all;
// partially filled credentials still fail at the adapter with a typed error.
func (g GoogleAdsConfig) Configured() bool {
	return strings.TrimSpace(g.ClientID) != "" ||
		strings.TrimSpace(g.RefreshToken) != "" ||
		strings.TrimSpace(g.DeveloperToken) != ""
}

type MetaAdsConfig struct {
	AccessToken string `envconfig:"MARCUS_META_ADS_ACCESS_TOKEN"`
	AccountID   string `envconfig:"MARCUS_META_ADS_ACCOUNT_ID"`
	// Default must stay in lockstep with the Graph API version the meta ads
	// client is written against (metaads.defaultAPIVersion).
	APIVersion  string `envconfig:"MARCUS_META_ADS_API_VERSION" default:"v21.0"`
	DailyBudget string `envconfig:"MARCUS_META_ADS_DAILY_BUDGET"`
}

func (m MetaAdsConfig) Configured() bool {
	return strings.TrimSpace(m.AccessToken) != "" || strings.TrimSpace(m.AccountID) != ""
}

type DBConfig struct {
	DSN    string `envconfig:"MARCUS_DB_DSN"`
	Driver string `envconfig:"MARCUS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MARCUS_DB_HOST"`
	Port     int    `envconfig:"MARCUS_DB_PORT" default:"5432"`
	User     string `envconfig:"MARCUS_DB_USER"`
	Password string `envconfig:"MARCUS_DB_PASSWORD"`
	Name     string `envconfig:"MARCUS_DB_NAME"`
	SSLMode  string `envconfig:"MARCUS_DB_SSLMODE" default:"disable"`

	AutoMigrate bool `envconfig:"MARCUS_DB_AUTO_MIGRATE" default:"false"`

	MaxOpenConns    int           `envconfig:"MARCUS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARCUS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARCUS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARCUS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARCUS_REDIS_URL"`
	Address      string        `envconfig:"MARCUS_REDIS_ADDR"`
	Password     string        `envconfig:"MARCUS_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARCUS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARCUS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARCUS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARCUS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARCUS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARCUS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MARCUS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MARCUS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MARCUS_GOOGLE_APPLICATION_CREDENTIALS"`
}

func (g GCPConfig) Configured() bool {
	return strings.TrimSpace(g.ProjectID) != ""
}

type PubSubConfig struct {
	ReportsTopic string `envconfig:"MARCUS_PUBSUB_REPORTS_TOPIC" default:"marcus-report-events"`
}

type BigQueryConfig struct {
	Dataset            string `envconfig:"MARCUS_BIGQUERY_DATASET" default:"marcus"`
	SnapshotFactsTable string `envconfig:"MARCUS_BIGQUERY_SNAPSHOT_TABLE" default:"snapshot_facts"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.Host == "" || db.User == "" || db.Name == "" {
		// DSN-less setups run without persistence; cmd/api treats this as optional.
		return nil
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

// Configured reports whether any persistence target was provided.
func (db DBConfig) Configured() bool {
	return strings.TrimSpace(db.DSN) != "" || strings.TrimSpace(db.Host) != ""
}
