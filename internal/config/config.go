package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/kadena-cli/internal/id"
	"github.com/ggonzalez94/kadena-cli/internal/registry"
)

const (
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"

	defaultEnvFile = ".env"
)

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	Retries        int
	NoCache        bool
	Network        string
	DefaultChain   string
	KeySource      string
	LogLevel       string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Timeout        time.Duration
	Retries        int

	Network      id.Network
	DefaultChain string
	KeySource    string

	ChainwebHost string
	GraphQLURL   string
	RPCRate      float64

	CacheEnabled  bool
	CacheBackend  string
	CachePath     string
	CacheLockPath string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ActionStorePath string
	ActionLockPath  string
	ConfirmTimeout  time.Duration
	ProofTimeout    time.Duration
	PollInterval    time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	LogLevel  string
	LogFormat string
	ServeAddr string
}

type fileConfig struct {
	Output       string `yaml:"output"`
	Timeout      string `yaml:"timeout"`
	Retries      *int   `yaml:"retries"`
	Network      string `yaml:"network"`
	DefaultChain string `yaml:"default_chain"`
	KeySource    string `yaml:"key_source"`
	Chainweb     struct {
		Host    string   `yaml:"host"`
		RPCRate *float64 `yaml:"rpc_rate"`
	} `yaml:"chainweb"`
	Indexer struct {
		URL string `yaml:"url"`
	} `yaml:"indexer"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Backend  string `yaml:"backend"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		Redis    struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       *int   `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Execution struct {
		ActionsPath     string `yaml:"actions_path"`
		ActionsLockPath string `yaml:"actions_lock_path"`
		ConfirmTimeout  string `yaml:"confirm_timeout"`
		ProofTimeout    string `yaml:"proof_timeout"`
		PollInterval    string `yaml:"poll_interval"`
	} `yaml:"execution"`
	Events struct {
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
	} `yaml:"events"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Serve struct {
		Addr string `yaml:"addr"`
	} `yaml:"serve"`
}

// envSettings is the environment layer. Pointer fields stay nil when unset.
type envSettings struct {
	Network         *string        `envconfig:"KADENA_NETWORK"`
	DefaultChain    *string        `envconfig:"DEFAULT_CHAIN"`
	KeySource       *string        `envconfig:"KDA_KEY_SOURCE"`
	Output          *string        `envconfig:"KDA_OUTPUT"`
	Timeout         *time.Duration `envconfig:"KDA_TIMEOUT"`
	Retries         *int           `envconfig:"KDA_RETRIES"`
	NoCache         *bool          `envconfig:"KDA_NO_CACHE"`
	CacheBackend    *string        `envconfig:"KDA_CACHE_BACKEND"`
	CachePath       *string        `envconfig:"KDA_CACHE_PATH"`
	CacheLockPath   *string        `envconfig:"KDA_CACHE_LOCK_PATH"`
	RedisAddr       *string        `envconfig:"KDA_REDIS_ADDR"`
	RedisPassword   *string        `envconfig:"KDA_REDIS_PASSWORD"`
	RedisDB         *int           `envconfig:"KDA_REDIS_DB"`
	ActionsPath     *string        `envconfig:"KDA_ACTIONS_PATH"`
	ActionsLockPath *string        `envconfig:"KDA_ACTIONS_LOCK_PATH"`
	PollInterval    *time.Duration `envconfig:"KDA_POLL_INTERVAL"`
	ChainwebHost    *string        `envconfig:"KDA_CHAINWEB_HOST"`
	GraphQLURL      *string        `envconfig:"KDA_GRAPHQL_URL"`
	RPCRate         *float64       `envconfig:"KDA_RPC_RATE"`
	KafkaBrokers    []string       `envconfig:"KDA_KAFKA_BROKERS"`
	KafkaTopic      *string        `envconfig:"KDA_KAFKA_TOPIC"`
	LogLevel        *string        `envconfig:"KDA_LOG_LEVEL"`
	LogFormat       *string        `envconfig:"KDA_LOG_FORMAT"`
	ServeAddr       *string        `envconfig:"KDA_SERVE_ADDR"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}
	if err := loadEnvFile(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}
	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if err := validate(&settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:      "json",
		Timeout:         10 * time.Second,
		Retries:         2,
		Network:         id.Mainnet,
		DefaultChain:    "1",
		RPCRate:         10,
		CacheEnabled:    true,
		CacheBackend:    CacheBackendSQLite,
		CachePath:       cachePath,
		CacheLockPath:   lockPath,
		ActionStorePath: filepath.Join(cacheDir, "actions.db"),
		ActionLockPath:  filepath.Join(cacheDir, "actions.lock"),
		KafkaTopic:      "kda.saga",
		LogLevel:        "warn",
		LogFormat:       "text",
		ServeAddr:       "127.0.0.1:8787",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "kda", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "kda")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Network != "" {
		settings.Network = id.Network(strings.TrimSpace(cfg.Network))
	}
	if cfg.DefaultChain != "" {
		settings.DefaultChain = cfg.DefaultChain
	}
	if cfg.KeySource != "" {
		settings.KeySource = cfg.KeySource
	}
	if cfg.Chainweb.Host != "" {
		settings.ChainwebHost = cfg.Chainweb.Host
	}
	if cfg.Chainweb.RPCRate != nil {
		settings.RPCRate = *cfg.Chainweb.RPCRate
	}
	if cfg.Indexer.URL != "" {
		settings.GraphQLURL = cfg.Indexer.URL
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Backend != "" {
		settings.CacheBackend = strings.ToLower(cfg.Cache.Backend)
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Cache.Redis.Addr != "" {
		settings.RedisAddr = cfg.Cache.Redis.Addr
	}
	if cfg.Cache.Redis.Password != "" {
		settings.RedisPassword = cfg.Cache.Redis.Password
	}
	if cfg.Cache.Redis.DB != nil {
		settings.RedisDB = *cfg.Cache.Redis.DB
	}
	if cfg.Execution.ActionsPath != "" {
		settings.ActionStorePath = cfg.Execution.ActionsPath
	}
	if cfg.Execution.ActionsLockPath != "" {
		settings.ActionLockPath = cfg.Execution.ActionsLockPath
	}
	if cfg.Execution.ConfirmTimeout != "" {
		d, err := time.ParseDuration(cfg.Execution.ConfirmTimeout)
		if err != nil {
			return fmt.Errorf("config execution.confirm_timeout: %w", err)
		}
		settings.ConfirmTimeout = d
	}
	if cfg.Execution.ProofTimeout != "" {
		d, err := time.ParseDuration(cfg.Execution.ProofTimeout)
		if err != nil {
			return fmt.Errorf("config execution.proof_timeout: %w", err)
		}
		settings.ProofTimeout = d
	}
	if cfg.Execution.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Execution.PollInterval)
		if err != nil {
			return fmt.Errorf("config execution.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if len(cfg.Events.KafkaBrokers) > 0 {
		settings.KafkaBrokers = cfg.Events.KafkaBrokers
	}
	if cfg.Events.KafkaTopic != "" {
		settings.KafkaTopic = cfg.Events.KafkaTopic
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = cfg.Log.Format
	}
	if cfg.Serve.Addr != "" {
		settings.ServeAddr = cfg.Serve.Addr
	}
	return nil
}

// loadEnvFile reads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. A missing default file is fine.
func loadEnvFile(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = defaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func applyEnv(settings *Settings) error {
	var env envSettings
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	setString := func(dst *string, v *string) {
		if v != nil && strings.TrimSpace(*v) != "" {
			*dst = strings.TrimSpace(*v)
		}
	}
	if env.Network != nil && strings.TrimSpace(*env.Network) != "" {
		settings.Network = id.Network(strings.TrimSpace(*env.Network))
	}
	setString(&settings.DefaultChain, env.DefaultChain)
	setString(&settings.KeySource, env.KeySource)
	if env.Output != nil && *env.Output != "" {
		settings.OutputMode = strings.ToLower(*env.Output)
	}
	if env.Timeout != nil {
		settings.Timeout = *env.Timeout
	}
	if env.Retries != nil {
		settings.Retries = *env.Retries
	}
	if env.NoCache != nil {
		settings.CacheEnabled = !*env.NoCache
	}
	if env.CacheBackend != nil && *env.CacheBackend != "" {
		settings.CacheBackend = strings.ToLower(*env.CacheBackend)
	}
	setString(&settings.CachePath, env.CachePath)
	setString(&settings.CacheLockPath, env.CacheLockPath)
	setString(&settings.RedisAddr, env.RedisAddr)
	setString(&settings.RedisPassword, env.RedisPassword)
	if env.RedisDB != nil {
		settings.RedisDB = *env.RedisDB
	}
	setString(&settings.ActionStorePath, env.ActionsPath)
	setString(&settings.ActionLockPath, env.ActionsLockPath)
	if env.PollInterval != nil {
		settings.PollInterval = *env.PollInterval
	}
	setString(&settings.ChainwebHost, env.ChainwebHost)
	setString(&settings.GraphQLURL, env.GraphQLURL)
	if env.RPCRate != nil {
		settings.RPCRate = *env.RPCRate
	}
	if len(env.KafkaBrokers) > 0 {
		settings.KafkaBrokers = env.KafkaBrokers
	}
	setString(&settings.KafkaTopic, env.KafkaTopic)
	setString(&settings.LogLevel, env.LogLevel)
	setString(&settings.LogFormat, env.LogFormat)
	setString(&settings.ServeAddr, env.ServeAddr)
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if v := strings.TrimSpace(flags.Network); v != "" {
		settings.Network = id.Network(v)
	}
	if v := strings.TrimSpace(flags.DefaultChain); v != "" {
		settings.DefaultChain = v
	}
	if v := strings.TrimSpace(flags.KeySource); v != "" {
		settings.KeySource = v
	}
	if v := strings.TrimSpace(flags.LogLevel); v != "" {
		settings.LogLevel = v
	}
	return nil
}

func validate(settings *Settings) error {
	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	network, err := id.ParseNetwork(string(settings.Network))
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	settings.Network = network
	chain, err := id.ParseChainID(settings.DefaultChain)
	if err != nil {
		return fmt.Errorf("default chain: %w", err)
	}
	settings.DefaultChain = chain
	switch settings.CacheBackend {
	case CacheBackendSQLite:
	case CacheBackendRedis:
		if strings.TrimSpace(settings.RedisAddr) == "" {
			return fmt.Errorf("cache backend redis requires KDA_REDIS_ADDR or cache.redis.addr")
		}
	default:
		return fmt.Errorf("cache backend must be %s or %s", CacheBackendSQLite, CacheBackendRedis)
	}
	for name, endpoint := range map[string]string{"chainweb host": settings.ChainwebHost, "graphql url": settings.GraphQLURL} {
		if !registry.IsAllowedEndpointOverride(endpoint) {
			return fmt.Errorf("%s %q must use https (http is allowed only for localhost)", name, endpoint)
		}
	}
	if settings.ConfirmTimeout < 0 || settings.ProofTimeout < 0 || settings.PollInterval < 0 {
		return fmt.Errorf("execution timeouts and poll interval must not be negative")
	}
	if settings.RPCRate < 0 {
		return fmt.Errorf("rpc rate must not be negative")
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
