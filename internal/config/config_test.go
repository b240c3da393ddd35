package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/kadena-cli/internal/id"
)

// isolate points every lookup at a temp dir so the developer's own files
// and environment do not leak into the test.
func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmp, "cache"))
	for _, key := range []string{"KADENA_NETWORK", "DEFAULT_CHAIN", "KDA_OUTPUT", "KDA_RETRIES", "KDA_NO_CACHE", "KDA_CACHE_BACKEND", "KDA_REDIS_ADDR", "KDA_KAFKA_BROKERS", "KDA_TIMEOUT"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmp))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return tmp
}

func TestLoadDefaults(t *testing.T) {
	tmp := isolate(t)

	settings, err := Load(GlobalFlags{Retries: -1})
	require.NoError(t, err)
	assert.Equal(t, "json", settings.OutputMode)
	assert.Equal(t, id.Mainnet, settings.Network)
	assert.Equal(t, "1", settings.DefaultChain)
	assert.Equal(t, 2, settings.Retries)
	assert.Equal(t, CacheBackendSQLite, settings.CacheBackend)
	assert.Equal(t, filepath.Join(tmp, "cache", "kda", "cache.db"), settings.CachePath)
	assert.Equal(t, filepath.Join(tmp, "cache", "kda", "actions.db"), settings.ActionStorePath)
	assert.Zero(t, settings.ConfirmTimeout)
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("output: plain\nretries: 1\nnetwork: testnet04\ndefault_chain: \"4\"\n"), 0o644))

	t.Setenv("KDA_OUTPUT", "json")
	t.Setenv("DEFAULT_CHAIN", "7")
	settings, err := Load(GlobalFlags{ConfigPath: configPath, Plain: true, Retries: 5})
	require.NoError(t, err)
	assert.Equal(t, "plain", settings.OutputMode)
	assert.Equal(t, 5, settings.Retries)
	assert.Equal(t, id.Testnet, settings.Network)
	assert.Equal(t, "7", settings.DefaultChain)

	settings, err = Load(GlobalFlags{ConfigPath: configPath, Retries: -1, DefaultChain: "9"})
	require.NoError(t, err)
	assert.Equal(t, "json", settings.OutputMode)
	assert.Equal(t, 1, settings.Retries)
	assert.Equal(t, "9", settings.DefaultChain)
}

func TestLoadFileSections(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	body := `
cache:
  backend: redis
  redis:
    addr: 127.0.0.1:6379
    db: 3
execution:
  confirm_timeout: 2m
  proof_timeout: 90s
  poll_interval: 500ms
events:
  kafka_brokers: [broker-1:9092, broker-2:9092]
chainweb:
  host: http://localhost:8080
`
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o644))

	settings, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1})
	require.NoError(t, err)
	assert.Equal(t, CacheBackendRedis, settings.CacheBackend)
	assert.Equal(t, "127.0.0.1:6379", settings.RedisAddr)
	assert.Equal(t, 3, settings.RedisDB)
	assert.Equal(t, 2*time.Minute, settings.ConfirmTimeout)
	assert.Equal(t, 90*time.Second, settings.ProofTimeout)
	assert.Equal(t, 500*time.Millisecond, settings.PollInterval)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, settings.KafkaBrokers)
	assert.Equal(t, "http://localhost:8080", settings.ChainwebHost)
}

func TestLoadEnvFileDoesNotOverrideProcessEnv(t *testing.T) {
	tmp := isolate(t)
	envPath := filepath.Join(tmp, "wallet.env")
	require.NoError(t, os.WriteFile(envPath, []byte("KADENA_NETWORK=testnet04\nDEFAULT_CHAIN=3\nKDA_KAFKA_BROKERS=a:9092,b:9092\n"), 0o600))
	t.Setenv("DEFAULT_CHAIN", "2")
	t.Cleanup(func() {
		_ = os.Unsetenv("KADENA_NETWORK")
		_ = os.Unsetenv("KDA_KAFKA_BROKERS")
	})

	settings, err := Load(GlobalFlags{EnvFile: envPath, Retries: -1})
	require.NoError(t, err)
	assert.Equal(t, id.Testnet, settings.Network)
	assert.Equal(t, "2", settings.DefaultChain)
	assert.Equal(t, []string{"a:9092", "b:9092"}, settings.KafkaBrokers)
}

func TestLoadMissingExplicitEnvFile(t *testing.T) {
	tmp := isolate(t)
	_, err := Load(GlobalFlags{EnvFile: filepath.Join(tmp, "nope.env"), Retries: -1})
	require.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	isolate(t)

	_, err := Load(GlobalFlags{JSON: true, Plain: true})
	require.Error(t, err)

	_, err = Load(GlobalFlags{Network: "devnet", Retries: -1})
	require.Error(t, err)

	_, err = Load(GlobalFlags{DefaultChain: "20", Retries: -1})
	require.Error(t, err)

	t.Setenv("KDA_CACHE_BACKEND", "redis")
	_, err = Load(GlobalFlags{Retries: -1})
	require.ErrorContains(t, err, "requires KDA_REDIS_ADDR")

	t.Setenv("KDA_CACHE_BACKEND", "memcached")
	_, err = Load(GlobalFlags{Retries: -1})
	require.Error(t, err)
}

func TestLoadNoCacheFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("KDA_NO_CACHE", "true")
	t.Setenv("KDA_TIMEOUT", "3s")

	settings, err := Load(GlobalFlags{Retries: -1})
	require.NoError(t, err)
	assert.False(t, settings.CacheEnabled)
	assert.Equal(t, 3*time.Second, settings.Timeout)
}
