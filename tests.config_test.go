package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const testConfigYAML = `
is_production: true
log_level: warn
log_folder: /var/log/books
server:
  host: 0.0.0.0
  port: "8080"
  read_timeout: 5s
  write_timeout: 10s
storage:
  driver: postgres
postgres:
  dsn: postgres://books:books@db:5432/books
  max_conns: 8
ratelimit:
  enable: true
  rate: 2.5
  burst: 5
  trusted_proxies: [10.0.0.1]
`

func writeTestConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	config, err := LoadConfigFile(writeTestConfigFile(t, testConfigYAML))
	require.NoError(t, err)
	assert.True(t, config.IsProduction)
	assert.Equal(t, zapcore.WarnLevel, config.LogLevel)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 5*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, PostgresDriver, config.Storage.Driver)
	assert.Equal(t, int32(8), config.Postgres.MaxConns)
	assert.Equal(t, 2.5, config.RateLimit.Rate)
	assert.Equal(t, []string{"10.0.0.1"}, config.RateLimit.TrustedProxies)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	_, err = LoadConfigFile(writeTestConfigFile(t, "server: [not, a, map"))
	assert.Error(t, err)
}

// TestLoadConfigEnvs ensures environment variables override file values.
func TestLoadConfigEnvs(t *testing.T) {
	config, err := LoadConfigFile(writeTestConfigFile(t, testConfigYAML))
	require.NoError(t, err)

	t.Setenv("BCAP_SERVER_PORT", "9090")
	t.Setenv("BCAP_LOG_LEVEL", "error")
	t.Setenv("BCAP_STORAGE_DRIVER", "bolt")
	t.Setenv("BCAP_SERVER_REQUEST_TIMEOUT", "45s")
	t.Setenv("BCAP_RATELIMIT_TRUSTED_PROXIES", "10.0.0.1,10.0.0.2")
	require.NoError(t, LoadConfigEnvs("BCAP", config))

	assert.Equal(t, "9090", config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, zapcore.ErrorLevel, config.LogLevel)
	assert.Equal(t, BoltDriver, config.Storage.Driver)
	assert.Equal(t, 45*time.Second, config.Server.RequestTimeout)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, config.RateLimit.TrustedProxies)
}

func TestInitConfig_Defaults(t *testing.T) {
	config := &Config{
		Server: ServerConfig{Host: "localhost", Port: "8080", WriteTimeout: 10 * time.Second},
		Redis:  RedisConfig{Host: "localhost", Port: "6379"},
	}
	require.NoError(t, InitConfig(config, "abc123", "v1.0.0", "2023-07-02"))
	assert.Equal(t, "abc123", config.GitCommit)
	assert.Equal(t, "v1.0.0", config.GitTag)
	assert.Equal(t, "2023-07-02", config.BuildTime)
	assert.Equal(t, 10, config.LogMaxSize)
	assert.Equal(t, 30*time.Second, config.Server.RequestTimeout)
	assert.Equal(t, 10*time.Second, config.Server.LongRequestWriteTimeout)
	assert.Equal(t, RedisDriver, config.Storage.Driver)

	config = &Config{
		Server:   ServerConfig{Host: "localhost", Port: "8080"},
		Storage:  StorageConfig{Driver: PostgresDriver},
		Postgres: PostgresConfig{DSN: "postgres://localhost/books"},
	}
	require.NoError(t, InitConfig(config, "", "", ""))
	assert.Equal(t, "books", config.Postgres.TableName)
}

func TestInitConfig_Errors(t *testing.T) {
	server := ServerConfig{Host: "localhost", Port: "8080"}
	testCases := []struct {
		name   string
		config Config
	}{
		{"missing server address", Config{Server: ServerConfig{Port: "8080"}}},
		{"missing redis address", Config{Server: server, Storage: StorageConfig{Driver: RedisDriver}}},
		{"missing bolt file", Config{Server: server, Storage: StorageConfig{Driver: BoltDriver}}},
		{"missing postgres dsn", Config{Server: server, Storage: StorageConfig{Driver: PostgresDriver}}},
		{"unknown driver", Config{Server: server, Storage: StorageConfig{Driver: "mongo"}}},
		{
			"rate limit without rate",
			Config{Server: server, RateLimit: RateLimitConfig{Enable: true, Burst: 1}, Storage: StorageConfig{Driver: BoltDriver}, BoltDB: BoltDBConfig{FilePath: "books.db", BucketName: "books"}},
		},
		{
			"mirror without redis",
			Config{Server: server, Mirror: MirrorConfig{Enable: true}, Storage: StorageConfig{Driver: BoltDriver}, BoltDB: BoltDBConfig{FilePath: "books.db", BucketName: "books"}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, InitConfig(&tc.config, "", "", ""))
		})
	}
}

// TestLoadAndInitConfigs ensures the repository config files load and
// that real environment variables take precedence over config.env.
func TestLoadAndInitConfigs(t *testing.T) {
	t.Setenv("BCAP_LOG_LEVEL", "warn")
	t.Setenv("BCAP_REDIS_USERNAME", "")
	t.Setenv("BCAP_REDIS_PASSWORD", "")

	config, err := LoadAndInitConfigs("abc123", "", "")
	require.NoError(t, err)
	assert.Equal(t, "abc123", config.GitCommit)
	assert.Equal(t, zapcore.WarnLevel, config.LogLevel)
	assert.Equal(t, BoltDriver, config.Storage.Driver)
	assert.NotEmpty(t, config.Server.Port)
}
