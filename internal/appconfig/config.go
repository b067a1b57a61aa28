package appconfig

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int                `mapstructure:"config_version" yaml:"config_version"`
	Endpoint      EndpointConfig     `mapstructure:"endpoint" yaml:"endpoint"`
	Terminal      TerminalConfig     `mapstructure:"terminal" yaml:"terminal"`
	Window        WindowConfig       `mapstructure:"window" yaml:"window"`
	Settings      SettingsConfig     `mapstructure:"settings" yaml:"settings"`
	Dependencies  DependenciesConfig `mapstructure:"dependencies" yaml:"dependencies"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Terminal backends.
const (
	BackendXTerm = "xterm"
	BackendPTY   = "pty"
)

// EndpointConfig controls the single-instance socket.
type EndpointConfig struct {
	Name            string `mapstructure:"name" yaml:"name"`
	Dir             string `mapstructure:"dir" yaml:"dir"`
	ClientTimeoutMS int    `mapstructure:"client_timeout_ms" yaml:"client_timeout_ms"`
}

// TerminalConfig controls how terminals are launched.
type TerminalConfig struct {
	Backend        string `mapstructure:"backend" yaml:"backend"`
	Program        string `mapstructure:"program" yaml:"program"`
	Shell          string `mapstructure:"shell" yaml:"shell"`
	Class          string `mapstructure:"class" yaml:"class"`
	StartTimeoutMS int    `mapstructure:"start_timeout_ms" yaml:"start_timeout_ms"`
	StopTimeoutMS  int    `mapstructure:"stop_timeout_ms" yaml:"stop_timeout_ms"`
	CloseOnExit    bool   `mapstructure:"close_on_exit" yaml:"close_on_exit"`
	CellWidth      int    `mapstructure:"cell_width" yaml:"cell_width"`
	CellHeight     int    `mapstructure:"cell_height" yaml:"cell_height"`
	// Env holds KEY=VALUE entries added to every terminal environment.
	Env []string `mapstructure:"env" yaml:"env"`
}

// WindowConfig controls the host window.
type WindowConfig struct {
	Width             int    `mapstructure:"width" yaml:"width"`
	Height            int    `mapstructure:"height" yaml:"height"`
	EmbedInto         uint64 `mapstructure:"embed_into" yaml:"embed_into"`
	ResizeDebounceMS  int    `mapstructure:"resize_debounce_ms" yaml:"resize_debounce_ms"`
	DoublePaneDelayMS int    `mapstructure:"double_pane_delay_ms" yaml:"double_pane_delay_ms"`
}

// SettingsConfig locates the user settings file.
type SettingsConfig struct {
	Path            string `mapstructure:"path" yaml:"path"`
	Watch           bool   `mapstructure:"watch" yaml:"watch"`
	WatchDebounceMS int    `mapstructure:"watch_debounce_ms" yaml:"watch_debounce_ms"`
}

// DependenciesConfig overrides the executables checked at startup.
type DependenciesConfig struct {
	Required []string `mapstructure:"required" yaml:"required"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	dir, err := configDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Endpoint: EndpointConfig{
			Name:            "qermital",
			Dir:             "",
			ClientTimeoutMS: 1000,
		},
		Terminal: TerminalConfig{
			Backend:        BackendXTerm,
			Program:        "uxterm",
			Shell:          "bash",
			Class:          "UXTerm",
			StartTimeoutMS: 3000,
			StopTimeoutMS:  3000,
			CloseOnExit:    true,
			Env:            []string{},
		},
		Window: WindowConfig{
			Width:             1200,
			Height:            800,
			ResizeDebounceMS:  50,
			DoublePaneDelayMS: 500,
		},
		Settings: SettingsConfig{
			Path:            filepath.Join(dir, "settings.json"),
			Watch:           true,
			WatchDebounceMS: 200,
		},
		Dependencies: DependenciesConfig{
			Required: []string{},
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configDir() (string, error) {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, "qermital"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "qermital"), nil
}

// RequiredExecutables returns the programs that must be on PATH for the
// configured backend, unless dependencies.required overrides them.
func (c Config) RequiredExecutables() []string {
	if len(c.Dependencies.Required) > 0 {
		return c.Dependencies.Required
	}
	switch c.Terminal.Backend {
	case BackendPTY:
		return []string{c.Terminal.Shell}
	default:
		return []string{"xdotool", c.Terminal.Program, "xrdb"}
	}
}

// ClientTimeout returns the endpoint client timeout.
func (c Config) ClientTimeout() time.Duration {
	return millis(c.Endpoint.ClientTimeoutMS)
}

// StartTimeout returns the terminal start timeout.
func (c Config) StartTimeout() time.Duration {
	return millis(c.Terminal.StartTimeoutMS)
}

// StopTimeout returns the terminal stop grace period.
func (c Config) StopTimeout() time.Duration {
	return millis(c.Terminal.StopTimeoutMS)
}

// ResizeDebounce returns the resize quiet period.
func (c Config) ResizeDebounce() time.Duration {
	return millis(c.Window.ResizeDebounceMS)
}

// DoublePaneDelay returns how long after startup --double opens the
// secondary pane.
func (c Config) DoublePaneDelay() time.Duration {
	return millis(c.Window.DoublePaneDelayMS)
}

// WatchDebounce returns the settings-file quiet period.
func (c Config) WatchDebounce() time.Duration {
	return millis(c.Settings.WatchDebounceMS)
}

func millis(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
