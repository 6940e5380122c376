// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the small slice of preclear-ng settings that are
// not per-invocation flags: external tool paths, state/report
// directories, and the default SMART refresh interval. Flags always
// override config values, which always override the built-in defaults
// set here.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"github.com/stratastor/logger"

	"github.com/stratastor/preclear-ng/internal/constants"
)

var (
	instance   *Config
	once       sync.Once
	configPath string
)

// Config is the process-wide settings object, loaded once via LoadConfig.
type Config struct {
	Tools struct {
		DD       string `mapstructure:"dd"`
		Smartctl string `mapstructure:"smartctl"`
		Hdparm   string `mapstructure:"hdparm"`
		Fio      string `mapstructure:"fio"`
		Lsblk    string `mapstructure:"lsblk"`
		Blockdev string `mapstructure:"blockdev"`
		Findmnt  string `mapstructure:"findmnt"`
	} `mapstructure:"tools"`

	StateDir   string `mapstructure:"stateDir"`
	ReportsDir string `mapstructure:"reportsDir"`

	SMARTRefreshSeconds int `mapstructure:"smartRefreshSeconds"`

	Logger struct {
		LogLevel     string `mapstructure:"logLevel"`
		EnableSentry bool   `mapstructure:"enableSentry"`
		SentryDSN    string `mapstructure:"sentryDSN"`
	} `mapstructure:"logger"`
}

// LoadConfig loads configuration with precedence: explicit path argument,
// then PRECLEAR_CONFIG env var, then the system-wide default path. Missing
// files are not an error; built-in defaults apply.
func LoadConfig(configFilePath string) *Config {
	once.Do(func() {
		logConfig := logger.Config{LogLevel: "info", EnableSentry: false}
		l, err := logger.NewTag(logConfig, "config")
		if err != nil {
			instance = defaultConfig()
			return
		}

		viper.Reset()
		viper.SetConfigType("yaml")

		systemConfigPath := filepath.Join(SystemConfigDir(), constants.ConfigFileName)
		switch {
		case configFilePath != "":
			configPath = configFilePath
		case os.Getenv("PRECLEAR_CONFIG") != "":
			configPath = os.Getenv("PRECLEAR_CONFIG")
		default:
			configPath = systemConfigPath
		}

		if abs, err := filepath.Abs(configPath); err == nil {
			configPath = abs
		}
		viper.SetConfigFile(configPath)

		setDefaults()
		viper.AutomaticEnv()
		viper.SetEnvPrefix("PRECLEAR")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

		var cfg Config
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				l.Debug("config file not found, using built-in defaults", "path", configPath)
			} else {
				l.Warn("error reading config file, using built-in defaults", "err", err)
			}
		} else {
			l.Info("config file loaded", "path", viper.ConfigFileUsed())
		}

		if err := viper.Unmarshal(&cfg); err != nil {
			l.Error("failed to unmarshal configuration, using built-in defaults", "err", err)
			instance = defaultConfig()
			return
		}
		instance = &cfg
	})
	return instance
}

func setDefaults() {
	for name, path := range constants.DefaultToolPaths {
		viper.SetDefault("tools."+name, path)
	}
	viper.SetDefault("stateDir", constants.DefaultStateDir)
	viper.SetDefault("reportsDir", constants.DefaultReportsDir)
	viper.SetDefault("smartRefreshSeconds", constants.DefaultSMARTRefreshS)
	viper.SetDefault("logger.logLevel", "info")
	viper.SetDefault("logger.enableSentry", false)
}

func defaultConfig() *Config {
	var cfg Config
	cfg.Tools.DD = constants.DefaultToolPaths["dd"]
	cfg.Tools.Smartctl = constants.DefaultToolPaths["smartctl"]
	cfg.Tools.Hdparm = constants.DefaultToolPaths["hdparm"]
	cfg.Tools.Fio = constants.DefaultToolPaths["fio"]
	cfg.Tools.Lsblk = constants.DefaultToolPaths["lsblk"]
	cfg.Tools.Blockdev = constants.DefaultToolPaths["blockdev"]
	cfg.Tools.Findmnt = constants.DefaultToolPaths["findmnt"]
	cfg.StateDir = constants.DefaultStateDir
	cfg.ReportsDir = constants.DefaultReportsDir
	cfg.SMARTRefreshSeconds = constants.DefaultSMARTRefreshS
	cfg.Logger.LogLevel = "info"
	return &cfg
}

// SystemConfigDir returns the system-wide configuration directory.
func SystemConfigDir() string {
	return constants.SystemConfigDir
}

// ConfigPath returns the path the active configuration was loaded from.
func ConfigPath() string {
	return configPath
}
