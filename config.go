package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit               string          `yaml:"git_commit" envconfig:"BCAP_GIT_COMMIT" json:"git_commit"`
	GitTag                  string          `yaml:"git_tag" envconfig:"BCAP_GIT_TAG" json:"git_tag"`
	BuildTime               string          `yaml:"build_time" envconfig:"BCAP_BUILD_TIME" json:"build_time"`
	IsProduction            bool            `yaml:"is_production" envconfig:"BCAP_IS_PRODUCTION" json:"is_production"`
	LogLevel                zapcore.Level   `yaml:"log_level" envconfig:"BCAP_LOG_LEVEL" json:"log_level"`
	LogFolder               string          `yaml:"log_folder" envconfig:"BCAP_LOG_FOLDER" json:"log_folder"`
	LogMaxSize              int             `yaml:"log_max_size" envconfig:"BCAP_LOG_MAX_SIZE" json:"log_max_size"`
	OpsEndpointsEnable      bool            `yaml:"ops_endpoints_enable" envconfig:"BCAP_OPS_ENDPOINTS_ENABLE" json:"ops_endpoints_enable"`
	ProfilerEndpointsEnable bool            `yaml:"profiler_endpoints_enable" envconfig:"BCAP_PROFILER_ENDPOINTS_ENABLE" json:"profiler_endpoints_enable"`
	Server                  ServerConfig    `yaml:"server" json:"server"`
	RateLimit               RateLimitConfig `yaml:"ratelimit" json:"ratelimit"`
	Storage                 StorageConfig   `yaml:"storage" json:"storage"`
	Redis                   RedisConfig     `yaml:"redis" json:"redis"`
	BoltDB                  BoltDBConfig    `yaml:"boltdb" json:"boltdb"`
	Postgres                PostgresConfig  `yaml:"postgres" json:"postgres"`
	Mirror                  MirrorConfig    `yaml:"mirror" json:"mirror"`
}

type ServerConfig struct {
	Host                    string        `yaml:"host" envconfig:"BCAP_SERVER_HOST" json:"host"`
	Port                    string        `yaml:"port" envconfig:"BCAP_SERVER_PORT" json:"port"`
	ReadTimeout             time.Duration `yaml:"read_timeout" envconfig:"BCAP_SERVER_READ_TIMEOUT" json:"read_timeout"`
	WriteTimeout            time.Duration `yaml:"write_timeout" envconfig:"BCAP_SERVER_WRITE_TIMEOUT" json:"write_timeout"`
	RequestTimeout          time.Duration `yaml:"request_timeout" envconfig:"BCAP_SERVER_REQUEST_TIMEOUT" json:"request_timeout"` // Time to wait for a request to finish
	LongRequestWriteTimeout time.Duration `yaml:"long_request_write_timeout" envconfig:"BCAP_SERVER_LONG_REQUEST_WRITE_TIMEOUT" json:"long_request_write_timeout"`
	ShutdownTimeout         time.Duration `yaml:"shutdown_timeout" envconfig:"BCAP_SERVER_SHUTDOWN_TIMEOUT" json:"shutdown_timeout"`
}

type RateLimitConfig struct {
	Enable bool    `yaml:"enable" envconfig:"BCAP_RATELIMIT_ENABLE" json:"enable"`
	Rate   float64 `yaml:"rate" envconfig:"BCAP_RATELIMIT_RATE" json:"rate"` // Requests per second per client ip
	Burst  int     `yaml:"burst" envconfig:"BCAP_RATELIMIT_BURST" json:"burst"`
	// Peers allowed to set the client ip through X-Real-IP or X-Forwarded-For.
	TrustedProxies []string `yaml:"trusted_proxies" envconfig:"BCAP_RATELIMIT_TRUSTED_PROXIES" json:"trusted_proxies"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"BCAP_STORAGE_DRIVER" json:"driver"`
}

type RedisConfig struct {
	Host          string        `yaml:"host" envconfig:"BCAP_REDIS_HOST" json:"host"`
	Port          string        `yaml:"port" envconfig:"BCAP_REDIS_PORT" json:"port"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"BCAP_REDIS_DIAL_TIMEOUT" json:"dial_timeout"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"BCAP_REDIS_READ_TIMEOUT" json:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"BCAP_REDIS_WRITE_TIMEOUT" json:"write_timeout"`
	PoolSize      int           `yaml:"pool_size" envconfig:"BCAP_REDIS_POOL_SIZE" json:"pool_size"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"BCAP_REDIS_POOL_TIMEOUT" json:"pool_timeout"`
	Username      string        `yaml:"username" envconfig:"BCAP_REDIS_USERNAME" json:"-"`
	Password      string        `yaml:"password" envconfig:"BCAP_REDIS_PASSWORD" json:"-"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"BCAP_REDIS_DATABASE_INDEX" json:"db_index"`
}

type BoltDBConfig struct {
	FilePath   string        `yaml:"filepath" envconfig:"BCAP_BOLTDB_FILE_PATH" json:"filepath"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"BCAP_BOLTDB_TIMEOUT" json:"timeout"`
	BucketName string        `yaml:"bucket_name" envconfig:"BCAP_BOLTDB_BUCKET_NAME" json:"bucket_name"`
}

type PostgresConfig struct {
	DSN         string        `yaml:"dsn" envconfig:"BCAP_POSTGRES_DSN" json:"-"`
	MaxConns    int32         `yaml:"max_conns" envconfig:"BCAP_POSTGRES_MAX_CONNS" json:"max_conns"`
	MinConns    int32         `yaml:"min_conns" envconfig:"BCAP_POSTGRES_MIN_CONNS" json:"min_conns"`
	ConnTimeout time.Duration `yaml:"conn_timeout" envconfig:"BCAP_POSTGRES_CONN_TIMEOUT" json:"conn_timeout"`
	TableName   string        `yaml:"table_name" envconfig:"BCAP_POSTGRES_TABLE_NAME" json:"table_name"`
}

// MirrorConfig enables the replication of redis changes into the boltdb file.
type MirrorConfig struct {
	Enable bool `yaml:"enable" envconfig:"BCAP_MIRROR_ENABLE" json:"enable"`
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	yd := yaml.NewDecoder(file)
	err = yd.Decode(cfg)

	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables and provides an instance of the App config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Server.Host) == 0 || len(config.Server.Port) == 0 {
		return errors.New("make sure to set valid server address and port in configuration file")
	}

	if config.LogMaxSize <= 0 {
		config.LogMaxSize = 10
	}

	if config.Server.RequestTimeout <= 0 {
		config.Server.RequestTimeout = 30 * time.Second
	}

	if config.Server.LongRequestWriteTimeout <= 0 {
		config.Server.LongRequestWriteTimeout = config.Server.WriteTimeout
	}

	if config.RateLimit.Enable && (config.RateLimit.Rate <= 0 || config.RateLimit.Burst <= 0) {
		return errors.New("make sure to set positive rate and burst values when rate limiting is enabled")
	}

	switch config.Storage.Driver {
	case "":
		config.Storage.Driver = RedisDriver
		fallthrough
	case RedisDriver:
		if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
			return errors.New("make sure to set valid redis address and port in configuration file")
		}
	case BoltDriver:
		if len(config.BoltDB.FilePath) == 0 || len(config.BoltDB.BucketName) == 0 {
			return errors.New("make sure to set valid boltdb file path and bucket name in configuration file")
		}
	case PostgresDriver:
		if len(config.Postgres.DSN) == 0 {
			return errors.New("make sure to set valid postgres dsn in configuration file")
		}
		if len(config.Postgres.TableName) == 0 {
			config.Postgres.TableName = "books"
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", config.Storage.Driver)
	}

	if config.Mirror.Enable && config.Storage.Driver != RedisDriver {
		return errors.New("mirroring is only available with the redis storage driver")
	}

	return nil
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data.
func LoadAndInitConfigs(gitCommit, gitTag, buildTime string) (*Config, error) {
	// Setup the yaml configuration from file.
	config, err := LoadConfigFile("./config.yml")
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %w", err)
	}

	// Set the environment configuration.
	err = godotenv.Load("./config.env")
	if err != nil {
		return config, fmt.Errorf("failed to set environment configurations: %w", err)
	}

	// Use environment variables with prefix `BCAP`.
	err = LoadConfigEnvs("BCAP", config)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %w", err)
	}

	err = InitConfig(config, gitCommit, gitTag, buildTime)
	if err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %w", err)
	}
	return config, nil
}
