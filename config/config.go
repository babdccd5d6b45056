// Package config loads the CLI configuration: which host to talk to, the
// default invocation policy and per-command overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/aponysus/hostcall/journal"
	"github.com/aponysus/hostcall/policy"
	"github.com/aponysus/hostcall/wire"
)

const (
	TransportLocal = "local"
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Config holds application configuration.
type Config struct {
	Transport string
	Endpoint  string
	HostCmd   []string `mapstructure:"host_cmd"`
	Shape     string

	Defaults PolicyConfig
	Commands map[string]CommandConfig
	Journal  JournalConfig
}

// PolicyConfig is the policy applied to every command.
type PolicyConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Multiplier float64
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	Jitter     string
	Timeout    time.Duration
	Classifier string
}

// CommandConfig overrides the defaults for one command. Unset fields inherit.
type CommandConfig struct {
	MaxRetries *int           `mapstructure:"max_retries"`
	RetryDelay *time.Duration `mapstructure:"retry_delay"`
	Multiplier *float64
	MaxDelay   *time.Duration `mapstructure:"max_delay"`
	Jitter     *string
	Timeout    *time.Duration
	Classifier *string

	CircuitThreshold int           `mapstructure:"circuit_threshold"`
	CircuitCooldown  time.Duration `mapstructure:"circuit_cooldown"`

	Args map[string]any
}

// JournalConfig selects where finished calls are recorded.
type JournalConfig struct {
	Driver string // none, file or sqlite
	Path   string
}

// DefaultPath is ~/.config/hostcall/config.yaml.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "hostcall", "config.yaml")
}

// Load reads configuration from path and env. Env var overrides use prefix HOSTCALL_.
// An empty path looks for the default file and tolerates its absence.
func Load(path string) (Config, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs is Load on an arbitrary filesystem.
func LoadFs(fs afero.Fs, path string) (Config, error) {
	v := viper.New()
	v.SetFs(fs)

	v.SetDefault("transport", TransportLocal)
	v.SetDefault("endpoint", "http://127.0.0.1:8700")
	v.SetDefault("host_cmd", []string{})
	v.SetDefault("shape", "tagged")
	v.SetDefault("defaults.max_retries", policy.DefaultMaxRetries)
	v.SetDefault("defaults.retry_delay", policy.DefaultRetryDelay)
	v.SetDefault("defaults.multiplier", policy.DefaultMultiplier)
	v.SetDefault("defaults.max_delay", time.Duration(0))
	v.SetDefault("defaults.jitter", string(policy.JitterNone))
	v.SetDefault("defaults.timeout", time.Duration(0))
	v.SetDefault("defaults.classifier", "")
	v.SetDefault("journal.driver", "none")
	v.SetDefault("journal.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "hostcall", "journal.db"))

	v.SetConfigType("yaml")
	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Dir(DefaultPath()))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("HOSTCALL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects values no component can act on.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportLocal, TransportHTTP, TransportStdio:
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	if c.Transport == TransportStdio && len(c.HostCmd) == 0 {
		return errors.New("config: transport stdio needs host_cmd")
	}
	if _, err := wire.ParseShape(c.Shape); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := policy.ParseJitter(c.Defaults.Jitter); err != nil {
		return fmt.Errorf("config: defaults: %w", err)
	}
	for _, name := range c.CommandNames() {
		if j := c.Commands[name].Jitter; j != nil {
			if _, err := policy.ParseJitter(*j); err != nil {
				return fmt.Errorf("config: commands.%s: %w", name, err)
			}
		}
	}
	switch c.Journal.Driver {
	case "", "none", "file", "sqlite":
	default:
		return fmt.Errorf("config: unknown journal driver %q", c.Journal.Driver)
	}
	return nil
}

// CommandNames lists the commands with overrides, sorted.
func (c Config) CommandNames() []string {
	names := make([]string, 0, len(c.Commands))
	for name := range c.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Policy is the effective policy for command before call-site overrides.
func (c Config) Policy(command string) policy.Policy {
	p := c.Defaults.apply(policy.Default(command))
	if cc, ok := c.lookup(command); ok {
		p = cc.apply(p)
	}
	p.Meta.Source = policy.PolicySourceStatic
	return p
}

// Provider serves the configured policies.
func (c Config) Provider() *policy.StaticProvider {
	p := policy.NewStaticProvider()
	p.SetDefault(c.Policy(""))
	for _, name := range c.CommandNames() {
		p.Set(name, c.Policy(name))
	}
	return p
}

// Args returns the configured arguments for command, or nil.
func (c Config) Args(command string) map[string]any {
	cc, ok := c.lookup(command)
	if !ok || len(cc.Args) == 0 {
		return nil
	}
	out := make(map[string]any, len(cc.Args))
	for k, v := range cc.Args {
		out[k] = v
	}
	return out
}

// Viper lower-cases keys, so names are matched case-insensitively.
func (c Config) lookup(command string) (CommandConfig, bool) {
	if cc, ok := c.Commands[command]; ok {
		return cc, true
	}
	cc, ok := c.Commands[strings.ToLower(command)]
	return cc, ok
}

// ReplyShape is the parsed Shape; Validate guarantees it parses.
func (c Config) ReplyShape() wire.Shape {
	s, _ := wire.ParseShape(c.Shape)
	return s
}

// OpenJournal opens the configured store, or nil when the journal is off.
func (c Config) OpenJournal(fs afero.Fs) (journal.Store, error) {
	switch c.Journal.Driver {
	case "file":
		sink, err := journal.NewFileSink(fs, c.Journal.Path)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "sqlite":
		if dir := filepath.Dir(c.Journal.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create journal dir: %w", err)
			}
		}
		db, err := journal.OpenSQLite(c.Journal.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, nil
	}
}

func (pc PolicyConfig) apply(p policy.Policy) policy.Policy {
	p.Retry.MaxRetries = pc.MaxRetries
	p.Retry.RetryDelay = pc.RetryDelay
	p.Retry.Multiplier = pc.Multiplier
	p.Retry.MaxDelay = pc.MaxDelay
	p.Retry.Jitter = policy.JitterKind(pc.Jitter)
	p.Retry.Classifier = pc.Classifier
	p.Timeout = pc.Timeout
	return p
}

func (cc CommandConfig) apply(p policy.Policy) policy.Policy {
	if cc.MaxRetries != nil {
		p.Retry.MaxRetries = *cc.MaxRetries
	}
	if cc.RetryDelay != nil {
		p.Retry.RetryDelay = *cc.RetryDelay
	}
	if cc.Multiplier != nil {
		p.Retry.Multiplier = *cc.Multiplier
	}
	if cc.MaxDelay != nil {
		p.Retry.MaxDelay = *cc.MaxDelay
	}
	if cc.Jitter != nil {
		p.Retry.Jitter = policy.JitterKind(*cc.Jitter)
	}
	if cc.Timeout != nil {
		p.Timeout = *cc.Timeout
	}
	if cc.Classifier != nil {
		p.Retry.Classifier = *cc.Classifier
	}
	if cc.CircuitThreshold > 0 {
		p.Circuit = policy.CircuitPolicy{Enabled: true, Threshold: cc.CircuitThreshold, Cooldown: cc.CircuitCooldown}
	}
	return p
}
