// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

type Config struct {
	RPCList          []string `mapstructure:"rpc_list"`
	PriceAPIBaseURL  string   `mapstructure:"price_api_base_url"`
	PriceAPIKey      string   `mapstructure:"price_api_key"`
	Workers          int      `mapstructure:"workers"`
	DispatchDelay    int      `mapstructure:"dispatch_delay"` // ms between task dispatches
	SignaturePageLen int      `mapstructure:"signature_page_len"`
	Retries          int      `mapstructure:"retries"`
	DebugLogging     bool     `mapstructure:"debug_logging"`
	LogFile          string   `mapstructure:"log_file"`

	// Extra mint -> price-source id pairs on top of the built-in table.
	PriceIDOverrides map[string]string `mapstructure:"price_id_overrides"`
}

const (
	DefaultWorkers          = 5
	DefaultDispatchDelay    = 100
	DefaultSignaturePageLen = 1000
	DefaultRetries          = 3
	DefaultPriceAPIBaseURL  = "https://api.coingecko.com/api/v3"
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"workers":            DefaultWorkers,
		"dispatch_delay":     DefaultDispatchDelay,
		"signature_page_len": DefaultSignaturePageLen,
		"retries":            DefaultRetries,
		"price_api_base_url": DefaultPriceAPIBaseURL,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Viper lowercases map keys; mint addresses are case-sensitive
	// base58, so re-read the overrides straight from the file.
	if err := loadPriceIDOverrides(path, &cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func loadPriceIDOverrides(path string, cfg *Config) error {
	if len(cfg.PriceIDOverrides) == 0 {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var overrides struct {
		PriceIDOverrides map[string]string `json:"price_id_overrides"`
	}
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return err
	}
	cfg.PriceIDOverrides = overrides.PriceIDOverrides
	return nil
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	if err := validateURLWithCache(cfg.PriceAPIBaseURL, "http"); err != nil {
		return errors.New("invalid price API URL protocol")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.Workers <= 0 {
		return errors.New("invalid workers count")
	}
	if cfg.DispatchDelay <= 0 {
		return errors.New("invalid dispatch_delay")
	}
	if cfg.SignaturePageLen <= 0 || cfg.SignaturePageLen > 1000 {
		return errors.New("invalid signature_page_len")
	}
	if cfg.Retries < 0 {
		return errors.New("invalid retries count")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("WHIRLPOOL_PNL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envAPIKey := v.GetString("PRICE_API_KEY")
	if envAPIKey != "" {
		cfg.PriceAPIKey = envAPIKey
	}

	envRPCList := v.GetString("RPC_LIST")
	if envRPCList != "" {
		rpcs := strings.Split(envRPCList, ",")
		var cleanRPCs []string
		for _, rpc := range rpcs {
			clean := strings.TrimSpace(rpc)
			if clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}
	return nil
}
