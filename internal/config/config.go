package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-core-fx/config"
	"github.com/go-playground/validator/v10"
)

type http struct {
	Address     string   `koanf:"address"      validate:"required,hostname_port"`
	ProxyHeader string   `koanf:"proxy_header"`
	Proxies     []string `koanf:"proxies"`
}

type storageConfig struct {
	DataDir  string `koanf:"data_dir"  validate:"required_unless=InMemory true"`
	InMemory bool   `koanf:"in_memory"`
}

type commandsConfig struct {
	Mode       string   `koanf:"mode"       validate:"oneof=process inprocess"`
	Executable string   `koanf:"executable" validate:"required_if=Mode process"`
	Env        []string `koanf:"env"`
}

type watcherConfig struct {
	Enabled            bool          `koanf:"enabled"`
	PollInterval       time.Duration `koanf:"poll_interval"        validate:"gt=0"`
	Debounce           time.Duration `koanf:"debounce"             validate:"gte=0"`
	AllowNetworkDrives bool          `koanf:"allow_network_drives"`
	WatchedFiles       []string      `koanf:"watched_files"`
	UserConfigs        []string      `koanf:"user_configs"`
}

type historyConfig struct {
	MaxPerRepository int `koanf:"max_per_repository" validate:"gte=0"`
}

type Config struct {
	HTTP http `koanf:"http"`

	Repositories []string       `koanf:"repositories" validate:"dive,required"`
	Commands     commandsConfig `koanf:"commands"`
	Watcher      watcherConfig  `koanf:"watcher"`
	Storage      storageConfig  `koanf:"storage"`
	History      historyConfig  `koanf:"history"`
}

func Default() Config {
	//nolint:exhaustruct,mnd //default values
	return Config{
		HTTP: http{
			Address:     "127.0.0.1:9464",
			ProxyHeader: "X-Forwarded-For",
			Proxies:     []string{},
		},

		Commands: commandsConfig{
			Mode:       "inprocess",
			Executable: "hg",
		},

		Watcher: watcherConfig{
			Enabled:      true,
			PollInterval: 2 * time.Second,
			Debounce:     100 * time.Millisecond,
			WatchedFiles: []string{"patches/series", "patches/status", "patches/guards"},
		},

		Storage: storageConfig{
			DataDir: "./data",
		},

		History: historyConfig{
			MaxPerRepository: 1000,
		},
	}
}

func New(validate *validator.Validate) (Config, error) {
	cfg := Default()

	options := []config.Option{}
	if yamlPath := os.Getenv("CONFIG_PATH"); yamlPath != "" {
		options = append(options, config.WithLocalYAML(yamlPath))
	}

	if err := config.Load(&cfg, options...); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}
