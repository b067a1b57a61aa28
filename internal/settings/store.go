// Package settings persists the user's terminal appearance as a flat
// key-value JSON object.
package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pkt.systems/qermital/schema"
	"pkt.systems/pslog"
)

// DefaultPath returns $XDG_CONFIG_HOME/qermital/settings.json, falling back
// to ~/.config.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "qermital", "settings.json")
}

// Store persists settings to disk.
type Store struct {
	path string
	log  pslog.Logger
}

// NewStore constructs a store at the given file path.
func NewStore(path string) (*Store, error) {
	return NewStoreWithLogger(path, nil)
}

// NewStoreWithLogger constructs a store with logging.
func NewStoreWithLogger(path string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("settings path is required")
	}
	if logger != nil {
		logger = logger.With("settings_path", path)
	}
	return &Store{path: path, log: logger}, nil
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// LoadValues reads the raw key-value pairs. ok is false when no file exists.
func (s *Store) LoadValues() (map[string]string, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("settings load miss")
			}
			return nil, false, nil
		}
		s.warn("settings load failed", err)
		return nil, false, err
	}
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		s.warn("settings load failed", err)
		return nil, false, err
	}
	values := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			values[key] = v
		case float64:
			values[key] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	if s.log != nil {
		s.log.Debug("settings load ok", "keys", len(values))
	}
	return values, true, nil
}

// Load returns the stored settings overlaid on the defaults. Invalid stored
// values keep their default; the first such problem is returned along with
// the usable settings.
func (s *Store) Load() (schema.Settings, error) {
	values, ok, err := s.LoadValues()
	if err != nil {
		return schema.DefaultSettings(), err
	}
	if !ok {
		return schema.DefaultSettings(), nil
	}
	settings, err := schema.SettingsFromValues(values)
	if err != nil {
		s.warn("settings value ignored", err)
	}
	return settings, err
}

// Save writes settings atomically.
func (s *Store) Save(settings schema.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		s.warn("settings save failed", err)
		return err
	}
	data, err := json.MarshalIndent(settings.Values(), "", "  ")
	if err != nil {
		s.warn("settings save failed", err)
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "settings-*.json")
	if err != nil {
		s.warn("settings save failed", err)
		return err
	}
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		s.warn("settings save failed", err)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		s.warn("settings save failed", err)
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		s.warn("settings save failed", err)
		return err
	}
	if s.log != nil {
		s.log.Trace("settings save ok", "font_family", settings.FontFamily, "font_size", settings.FontSize)
	}
	return nil
}

// Set changes one key in the stored settings and saves them.
func (s *Store) Set(key, value string) (schema.Settings, error) {
	current, err := s.Load()
	if err != nil && !errors.Is(err, schema.ErrInvalidSetting) {
		return current, err
	}
	next, err := current.With(key, value)
	if err != nil {
		return current, err
	}
	if err := s.Save(next); err != nil {
		return current, err
	}
	return next, nil
}

func (s *Store) warn(msg string, err error) {
	if s.log != nil {
		s.log.Warn(msg, "err", err)
	}
}
