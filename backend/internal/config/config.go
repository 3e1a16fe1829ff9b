// Package config loads process configuration from flags, XREMU_ environment
// variables and an optional xremu.yaml file.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RelayConfig holds pose relay settings.
type RelayConfig struct {
	Enabled bool
	URL     string
	Retry   time.Duration
}

// Config is the resolved process configuration.
type Config struct {
	Addr             string
	LogLevel         string
	LogFormat        string
	TickInterval     time.Duration
	HapticResolution string
	KeymapPath       string
	SettingsPath     string
	Relay            RelayConfig
	HostKeyboard     bool
	Tray             bool
}

func setDefaults() {
	viper.SetDefault("addr", ":8080")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("tick.interval", "16ms")
	viper.SetDefault("haptics.resolution", "immediate")
	viper.SetDefault("keymap.path", "")
	viper.SetDefault("settings.path", "./xremu-settings.json")

	viper.SetDefault("relay.enabled", false)
	viper.SetDefault("relay.url", "ws://localhost:3000/listen")
	viper.SetDefault("relay.retry", "2s")

	viper.SetDefault("hostkbd.enabled", false)
	viper.SetDefault("tray", runtime.GOOS == "windows")
}

// RegisterFlags adds the command line flags understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("log.level", "info", "log level (trace, debug, info, warn, error)")
	fs.String("log.format", "console", "log format (console, json)")
	fs.Duration("tick.interval", 16*time.Millisecond, "haptic tick interval")
	fs.String("haptics.resolution", "immediate", "pulse result resolution (immediate, deferred)")
	fs.String("keymap.path", "", "YAML key mapping overrides")
	fs.String("settings.path", "./xremu-settings.json", "persisted emulator settings")
	fs.Bool("relay.enabled", false, "connect to the pose relay")
	fs.String("relay.url", "ws://localhost:3000/listen", "pose relay websocket URL")
	fs.Duration("relay.retry", 2*time.Second, "delay between pose relay reconnects")
	fs.Bool("hostkbd.enabled", false, "open a native window that captures host keys")
	fs.Bool("tray", runtime.GOOS == "windows", "show the system tray icon")
}

// Load sets defaults, binds fs (may be nil) and the environment, then reads
// xremu.yaml from configDir if present.
func Load(fs *pflag.FlagSet, configDir string) error {
	setDefaults()

	viper.SetEnvPrefix("XREMU")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if fs != nil {
		if err := viper.BindPFlags(fs); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}

	viper.SetConfigName("xremu")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Get returns the configuration currently held by viper.
func Get() Config {
	return Config{
		Addr:             viper.GetString("addr"),
		LogLevel:         viper.GetString("log.level"),
		LogFormat:        viper.GetString("log.format"),
		TickInterval:     viper.GetDuration("tick.interval"),
		HapticResolution: viper.GetString("haptics.resolution"),
		KeymapPath:       viper.GetString("keymap.path"),
		SettingsPath:     viper.GetString("settings.path"),
		Relay: RelayConfig{
			Enabled: viper.GetBool("relay.enabled"),
			URL:     viper.GetString("relay.url"),
			Retry:   viper.GetDuration("relay.retry"),
		},
		HostKeyboard: viper.GetBool("hostkbd.enabled"),
		Tray:         viper.GetBool("tray"),
	}
}
