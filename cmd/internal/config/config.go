package config

import (
	"os"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/zhukovvlad/residence-go/cmd/internal/db"
	"github.com/zhukovvlad/residence-go/cmd/internal/services/importer"
	"github.com/zhukovvlad/residence-go/cmd/pkg/logging"
)

const (
	defaultConfigPath = "./cmd/config/config.yml"

	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:","`
}

type PostgresConfig struct {
	Source         string `yaml:"source" env:"DB_SOURCE"`
	MaxWriteOps    int    `yaml:"max_write_ops" env-default:"500"`
	MaxQueryValues int    `yaml:"max_query_values" env-default:"1000"`
}

type DynamoTables struct {
	Students   string `yaml:"students" env-default:"students"`
	Addresses  string `yaml:"addresses" env-default:"addresses"`
	ImportRuns string `yaml:"import_runs" env-default:"import_runs"`
}

type DynamoConfig struct {
	Region   string       `yaml:"region" env:"AWS_REGION" env-default:"af-south-1"`
	Profile  string       `yaml:"profile" env:"AWS_PROFILE"`
	Endpoint string       `yaml:"endpoint" env:"DYNAMODB_ENDPOINT"`
	Tables   DynamoTables `yaml:"tables"`
}

type StoreConfig struct {
	Backend  string         `yaml:"backend" env:"STORE_BACKEND" env-default:"postgres"`
	Postgres PostgresConfig `yaml:"postgres"`
	DynamoDB DynamoConfig   `yaml:"dynamodb"`
}

type ImportConfig struct {
	// GroupSize и ExistenceBatchSize независимы; 0 - вывести из лимитов хранилища.
	GroupSize          int           `yaml:"group_size" env:"IMPORT_GROUP_SIZE" env-default:"0"`
	ExistenceBatchSize int           `yaml:"existence_batch_size" env:"IMPORT_EXISTENCE_BATCH_SIZE" env-default:"0"`
	MaxUploadBytes     int64         `yaml:"max_upload_bytes" env:"IMPORT_MAX_UPLOAD_BYTES" env-default:"5242880"`
	ProgressTTL        time.Duration `yaml:"progress_ttl" env-default:"24h"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type CRMConfig struct {
	URL           string        `yaml:"url" env:"CRM_URL"`
	APIKey        string        `yaml:"api_key" env:"CRM_API_KEY"`
	Workers       int           `yaml:"workers" env-default:"4"`
	QueueSize     int           `yaml:"queue_size" env-default:"1000"`
	Timeout       time.Duration `yaml:"timeout" env-default:"10s"`
	RatePerSecond float64       `yaml:"rate_per_second" env-default:"10"`
}

type RateLimitConfig struct {
	// Загрузок на оператора в минуту.
	UploadsPerMinute int `yaml:"uploads_per_minute" env-default:"20"`
}

type Config struct {
	IsDebug  *bool  `yaml:"is_debug" env:"IS_DEBUG" env-required:"true"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Listen   struct {
		BindIP string `yaml:"bind_ip" env-default:"127.0.0.1"`
		Port   string `yaml:"port" env:"PORT" env-default:"8080"`
	} `yaml:"listen"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	Store     StoreConfig     `yaml:"store"`
	Import    ImportConfig    `yaml:"import"`
	Redis     RedisConfig     `yaml:"redis"`
	CRM       CRMConfig       `yaml:"crm"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Debug dereferences IsDebug.
func (c *Config) Debug() bool {
	return c.IsDebug != nil && *c.IsDebug
}

// Path возвращает CONFIG_PATH или путь по умолчанию.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return defaultConfigPath
}

// Load читает конфиг с переопределением из env.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var instance *Config
var once sync.Once

func GetConfig() *Config {
	once.Do(func() {
		logger := logging.GetLogger()
		logger.Info("read application configuration")
		cfg, err := Load(Path())
		if err != nil {
			help, _ := cleanenv.GetDescription(&Config{}, nil)
			logger.Info(help)
			logger.Fatal(err)
		}
		instance = cfg
	})

	return instance
}

// ImportLimits выводит размер группы коммита и пачки запроса существования из
// лимитов хранилища. Значения из конфига учитываются, но не выше этих лимитов.
func (c ImportConfig) ImportLimits(limits db.Limits) (groupSize, existenceBatch int) {
	groupSize = importer.GroupSizeFor(limits)
	if c.GroupSize > 0 && c.GroupSize < groupSize {
		groupSize = c.GroupSize
	}

	existenceBatch = max(1, limits.MaxQueryValues)
	if c.ExistenceBatchSize > 0 && c.ExistenceBatchSize < existenceBatch {
		existenceBatch = c.ExistenceBatchSize
	}
	return groupSize, existenceBatch
}

// StoreLimits: лимиты Postgres из конфига или фиксированные лимиты DynamoDB.
func (c StoreConfig) StoreLimits() db.Limits {
	if c.Backend == BackendDynamoDB {
		return db.DynamoLimits
	}
	return db.Limits{MaxWriteOps: c.Postgres.MaxWriteOps, MaxQueryValues: c.Postgres.MaxQueryValues}
}
