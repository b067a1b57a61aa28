package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("endpoint.name", cfg.Endpoint.Name)
	v.SetDefault("endpoint.dir", cfg.Endpoint.Dir)
	v.SetDefault("endpoint.client_timeout_ms", cfg.Endpoint.ClientTimeoutMS)
	v.SetDefault("terminal.backend", cfg.Terminal.Backend)
	v.SetDefault("terminal.program", cfg.Terminal.Program)
	v.SetDefault("terminal.shell", cfg.Terminal.Shell)
	v.SetDefault("terminal.class", cfg.Terminal.Class)
	v.SetDefault("terminal.start_timeout_ms", cfg.Terminal.StartTimeoutMS)
	v.SetDefault("terminal.stop_timeout_ms", cfg.Terminal.StopTimeoutMS)
	v.SetDefault("terminal.close_on_exit", cfg.Terminal.CloseOnExit)
	v.SetDefault("terminal.cell_width", cfg.Terminal.CellWidth)
	v.SetDefault("terminal.cell_height", cfg.Terminal.CellHeight)
	v.SetDefault("terminal.env", cfg.Terminal.Env)
	v.SetDefault("window.width", cfg.Window.Width)
	v.SetDefault("window.height", cfg.Window.Height)
	v.SetDefault("window.embed_into", cfg.Window.EmbedInto)
	v.SetDefault("window.resize_debounce_ms", cfg.Window.ResizeDebounceMS)
	v.SetDefault("window.double_pane_delay_ms", cfg.Window.DoublePaneDelayMS)
	v.SetDefault("settings.path", cfg.Settings.Path)
	v.SetDefault("settings.watch", cfg.Settings.Watch)
	v.SetDefault("settings.watch_debounce_ms", cfg.Settings.WatchDebounceMS)
	v.SetDefault("dependencies.required", cfg.Dependencies.Required)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}
	switch v.GetString("terminal.backend") {
	case BackendXTerm, BackendPTY:
	default:
		return Config{}, fmt.Errorf("unsupported terminal.backend %q", v.GetString("terminal.backend"))
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Window.Width <= 0 || cfg.Window.Height <= 0 {
		return fmt.Errorf("window.width and window.height must be positive")
	}
	if (cfg.Terminal.CellWidth > 0) != (cfg.Terminal.CellHeight > 0) {
		return fmt.Errorf("terminal.cell_width and terminal.cell_height must be set together")
	}
	if cfg.Settings.Path == "" {
		return fmt.Errorf("settings.path is required")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Endpoint.Dir = expandEnv(cfg.Endpoint.Dir)
	cfg.Terminal.Program = expandEnv(cfg.Terminal.Program)
	cfg.Terminal.Shell = expandEnv(cfg.Terminal.Shell)
	cfg.Settings.Path = expandEnv(cfg.Settings.Path)
	for i, entry := range cfg.Terminal.Env {
		cfg.Terminal.Env[i] = expandEnv(entry)
	}
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
