package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// BearerTokenEnv overrides admin.bearer_token so the secret can stay out of
// the config file.
const BearerTokenEnv = "STOREFRONT_ADMIN_TOKEN"

// Feed backend modes.
const (
	FeedModeChainlink = "chainlink"
	FeedModeStatic    = "static"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for the storefront daemon.
type Config struct {
	ListenAddress  string      `yaml:"listen"`
	MetricsAddress string      `yaml:"metrics_listen"`
	StatePath      string      `yaml:"state_path"`
	QuoteLogPath   string      `yaml:"quote_log"`
	Paused         bool        `yaml:"paused"`
	Admin          AdminConfig `yaml:"admin"`
	Feeds          FeedsConfig `yaml:"feeds"`
	Tokens         []Token     `yaml:"tokens"`
}

// AdminConfig describes the operator identity performing registry mutations
// and the transport gate in front of it.
type AdminConfig struct {
	BearerToken string `yaml:"bearer_token"`
	Address     string `yaml:"address"`
}

// FeedsConfig selects the oracle backend serving aggregator rounds.
type FeedsConfig struct {
	Mode    string        `yaml:"mode"`
	RPCURL  string        `yaml:"rpc_url"`
	Timeout Duration      `yaml:"timeout"`
	Static  []StaticRound `yaml:"static"`
}

// StaticRound pins a development feed to a constant answer.
type StaticRound struct {
	Feed        string `yaml:"feed"`
	Answer      string `yaml:"answer"`
	Decimals    uint8  `yaml:"decimals"`
	Description string `yaml:"description"`
}

// Token registers one sale asset with the state manager at boot.
type Token struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if token := strings.TrimSpace(os.Getenv(BearerTokenEnv)); token != "" {
		cfg.Admin.BearerToken = token
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// AdminAddress parses the configured operator address into its raw bytes.
func (c Config) AdminAddress() ([20]byte, error) {
	trimmed := strings.TrimSpace(c.Admin.Address)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("admin address %q is not a hex address", c.Admin.Address)
	}
	return common.HexToAddress(trimmed), nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7087"
	}
	if cfg.MetricsAddress == "" {
		cfg.MetricsAddress = ":7187"
	}
	if cfg.StatePath == "" {
		cfg.StatePath = "/var/data/storefrontd/state"
	}
	if cfg.QuoteLogPath == "" {
		cfg.QuoteLogPath = "/var/data/storefrontd/quotes.sqlite"
	}
	if cfg.Feeds.Mode == "" {
		if strings.TrimSpace(cfg.Feeds.RPCURL) != "" {
			cfg.Feeds.Mode = FeedModeChainlink
		} else {
			cfg.Feeds.Mode = FeedModeStatic
		}
	}
	if cfg.Feeds.Timeout.Duration == 0 {
		cfg.Feeds.Timeout.Duration = 5 * time.Second
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Admin.BearerToken) == "" {
		return fmt.Errorf("admin bearer_token must be configured (or %s set)", BearerTokenEnv)
	}
	if _, err := cfg.AdminAddress(); err != nil {
		return err
	}
	switch cfg.Feeds.Mode {
	case FeedModeChainlink:
		if strings.TrimSpace(cfg.Feeds.RPCURL) == "" {
			return fmt.Errorf("feeds.rpc_url must be configured for chainlink mode")
		}
	case FeedModeStatic:
		for _, round := range cfg.Feeds.Static {
			if !common.IsHexAddress(strings.TrimSpace(round.Feed)) {
				return fmt.Errorf("static feed %q is not a hex address", round.Feed)
			}
		}
	default:
		return fmt.Errorf("feeds.mode must be %q or %q", FeedModeChainlink, FeedModeStatic)
	}
	if len(cfg.Tokens) == 0 {
		return fmt.Errorf("at least one sale token must be configured")
	}
	seen := make(map[string]struct{}, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if symbol == "" {
			return fmt.Errorf("token symbol must not be empty")
		}
		if strings.TrimSpace(token.Name) == "" {
			return fmt.Errorf("token %s requires a name", symbol)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("token %s configured twice", symbol)
		}
		seen[symbol] = struct{}{}
	}
	return nil
}
