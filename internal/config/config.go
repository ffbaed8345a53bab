// Package config assembles the runtime configuration from defaults, an
// optional YAML file, a .env file and environment variables, in that
// order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ernop/gpt-webdiff/internal/oracle"
	"github.com/ernop/gpt-webdiff/internal/validator"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "GPTDIFF_"
	// HomeEnv selects the base directory.
	HomeEnv = EnvPrefix + "HOME"
	// DefaultConfigFile is looked up in the home directory.
	DefaultConfigFile = "gptdiff.yaml"
	// DotEnvFile is read from the home directory when present.
	DotEnvFile = ".env"
)

// Config is the resolved configuration. Relative paths are resolved
// against Home by Path.
type Config struct {
	Home string `mapstructure:"-"`

	RegistryFile        string `mapstructure:"registry_file"`
	BackupDir           string `mapstructure:"backup_dir"`
	DataDir             string `mapstructure:"data_dir"`
	StateFile           string `mapstructure:"state_file"`
	ResponsesDir        string `mapstructure:"responses_dir"`
	EmailsDir           string `mapstructure:"emails_dir"`
	LogFile             string `mapstructure:"log_file"`
	LockFile            string `mapstructure:"lock_file"`
	TemplatesFile       string `mapstructure:"templates_file"`
	Threshold           int    `mapstructure:"threshold"`
	ContextBudget       int    `mapstructure:"context_budget"`
	FatalOnParseFailure bool   `mapstructure:"fatal_on_parse_failure"`

	Oracle OracleConfig `mapstructure:"oracle"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Email  EmailConfig  `mapstructure:"email"`
	Log    LogConfig    `mapstructure:"log"`
	Watch  WatchConfig  `mapstructure:"watch"`
}

// OracleConfig selects and configures the language model backend.
type OracleConfig struct {
	Provider  string        `mapstructure:"provider"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	BaseURL   string        `mapstructure:"base_url"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// FetchConfig configures page retrieval.
type FetchConfig struct {
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxBytes  int64         `mapstructure:"max_bytes"`
}

// EmailConfig configures notification delivery.
type EmailConfig struct {
	To       string `mapstructure:"to"`
	From     string `mapstructure:"from"`
	Login    string `mapstructure:"login"`
	Password string `mapstructure:"password"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Enabled  bool   `mapstructure:"enabled"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WatchConfig configures the in-process scheduler.
type WatchConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// Options locate the configuration sources.
type Options struct {
	Home       string   // Overrides GPTDIFF_HOME when set
	ConfigFile string   // Explicit config file; must exist when set
	Environ    []string // KEY=VALUE pairs, usually os.Environ()
	WorkDir    string   // Home when nothing else selects one
}

// Load resolves the configuration described by opts.
func Load(opts Options) (*Config, error) {
	env := parseEnviron(opts.Environ)

	home := opts.Home
	if home == "" {
		home = env[HomeEnv]
	}
	if home == "" {
		home = opts.WorkDir
	}
	if home == "" {
		home = "."
	}

	v := viper.New()
	v.SetConfigType("yaml")
	SetDefaults(v)

	configFile := opts.ConfigFile
	explicit := configFile != ""
	if !explicit {
		configFile = filepath.Join(home, DefaultConfigFile)
	} else if !filepath.IsAbs(configFile) {
		configFile = filepath.Join(home, configFile)
	}
	if _, err := os.Stat(configFile); err == nil {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", configFile)
		}
	} else if explicit {
		return nil, errors.Wrapf(err, "config file %s", configFile)
	}

	dotenv, err := readDotEnv(filepath.Join(home, DotEnvFile))
	if err != nil {
		return nil, err
	}

	// .env first, then the environment, so the environment wins
	for _, source := range []map[string]string{dotenv, env} {
		applyOverrides(v, source)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.Home = home

	if cfg.Oracle.APIKey == "" {
		cfg.Oracle.APIKey = providerKey(cfg.Oracle.Provider, dotenv, env)
	}
	return &cfg, nil
}

// EnvName returns the environment variable overriding key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
}

func applyOverrides(v *viper.Viper, vars map[string]string) {
	for _, key := range v.AllKeys() {
		if val, ok := vars[EnvName(key)]; ok {
			v.Set(key, val)
		}
	}
}

// providerKey falls back to the variable each provider's own tooling reads.
func providerKey(provider string, sources ...map[string]string) string {
	name := "OPENAI_API_KEY"
	if provider == oracle.ProviderAnthropic {
		name = "ANTHROPIC_API_KEY"
	}
	key := ""
	for _, src := range sources {
		if val := src[name]; val != "" {
			key = val
		}
	}
	return key
}

func readDotEnv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return vars, nil
}

func parseEnviron(environ []string) map[string]string {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars
}

// Path resolves p against Home unless it is absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Home, p)
}

// Validate checks values that can't be fixed by defaults.
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 10 {
		return &validator.ValidationError{
			Field:   "threshold",
			Value:   strconv.Itoa(c.Threshold),
			Message: "must be between 0 and 10",
		}
	}
	if c.ContextBudget < 1 {
		return &validator.ValidationError{
			Field:   "context_budget",
			Value:   strconv.Itoa(c.ContextBudget),
			Message: "must be positive",
		}
	}
	if verr := validator.ValidateEnum("oracle.provider", c.Oracle.Provider, oracle.Providers); verr != nil {
		return verr
	}
	if verr := validator.ValidateEnum("log.format", c.Log.Format, []string{"console", "json"}); verr != nil {
		return verr
	}
	return nil
}
