package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Settings keys as stored in the flat key-value store.
const (
	SettingFontFamily = "font_family"
	SettingFontSize   = "font_size"
	SettingBackground = "background_color"
	SettingForeground = "foreground_color"
)

const (
	// MinFontSize is the smallest accepted font size.
	MinFontSize = 8
	// MaxFontSize is the largest accepted font size.
	MaxFontSize = 22
)

// DefaultCellSize is the character cell used when no font size is known.
var DefaultCellSize = CellSize{Width: 7, Height: 15}

// BackgroundColors are the named background choices.
var BackgroundColors = map[string]string{
	"Solarized Dark":  "#002b36",
	"Solarized Light": "#fdf6e3",
	"Dracula":         "#282a36",
	"Nord":            "#2e3440",
	"Monokai":         "#272822",
	"Black":           "#000000",
	"Almost Black":    "#080808",
	"Dark Gray":       "#333333",
	"Medium Gray":     "#808080",
	"Light Gray":      "#cccccc",
	"White":           "#ffffff",
	"Off White":       "#f5f5f5",
	"Deep Blue":       "#000080",
	"Navy Blue":       "#001f3f",
	"Dark Teal":       "#008080",
	"Forest Green":    "#228b22",
	"Maroon":          "#800000",
	"Olive":           "#808000",
	"Brown":           "#a0522d",
	"Rosy Brown":      "#bc8f8f",
	"Ubuntu Red":      "#411824",
	"Girly Pink":      "#fdd7e4",
}

// ForegroundColors are the named foreground choices.
var ForegroundColors = map[string]string{
	"White":            "#ffffff",
	"Off White":        "#eee8d5",
	"Light Gray":       "#d3d7cf",
	"Gray":             "#93a1a1",
	"Solarized Yellow": "#b58900",
	"Solarized Cyan":   "#2aa198",
	"Green":            "#859900",
	"Bright Yellow":    "#ffff00",
	"Retro Green":      "#00ff00",
	"Retro Blue":       "#0000ff",
	"Teal":             "#008080",
	"Black":            "#000000",
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Settings is the immutable terminal appearance passed to every spawn and
// restart. Updates produce a new value.
type Settings struct {
	FontFamily string
	FontSize   int
	Background string
	Foreground string
}

// DefaultSettings returns the out-of-the-box appearance.
func DefaultSettings() Settings {
	return Settings{
		FontFamily: "JetBrains Mono",
		FontSize:   14,
		Background: "#002b36",
		Foreground: "#839496",
	}
}

// CellSize approximates the character cell for the font size. At the
// default size of 14 this is 7x15.
func (s Settings) CellSize() CellSize {
	if s.FontSize <= 0 {
		return DefaultCellSize
	}
	return CellSize{
		Width:  (s.FontSize + 1) / 2,
		Height: (s.FontSize*15 + 13) / 14,
	}
}

// Validate checks ranges and color formats.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.FontFamily) == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidSetting, SettingFontFamily)
	}
	if s.FontSize < MinFontSize || s.FontSize > MaxFontSize {
		return fmt.Errorf("%w: %s must be between %d and %d", ErrInvalidSetting, SettingFontSize, MinFontSize, MaxFontSize)
	}
	if !hexColor.MatchString(s.Background) {
		return fmt.Errorf("%w: %s %q is not #rrggbb", ErrInvalidSetting, SettingBackground, s.Background)
	}
	if !hexColor.MatchString(s.Foreground) {
		return fmt.Errorf("%w: %s %q is not #rrggbb", ErrInvalidSetting, SettingForeground, s.Foreground)
	}
	return nil
}

// With returns a copy with one key replaced. Colors accept a palette name
// or #rrggbb.
func (s Settings) With(key, value string) (Settings, error) {
	value = strings.TrimSpace(value)
	switch key {
	case SettingFontFamily:
		s.FontFamily = value
	case SettingFontSize:
		n, err := strconv.Atoi(value)
		if err != nil {
			return s, fmt.Errorf("%w: %s %q is not a number", ErrInvalidSetting, key, value)
		}
		s.FontSize = n
	case SettingBackground:
		s.Background = resolveColor(BackgroundColors, value)
	case SettingForeground:
		s.Foreground = resolveColor(ForegroundColors, value)
	default:
		return s, fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Values flattens the settings into the stored key-value form.
func (s Settings) Values() map[string]string {
	return map[string]string{
		SettingFontFamily: s.FontFamily,
		SettingFontSize:   strconv.Itoa(s.FontSize),
		SettingBackground: s.Background,
		SettingForeground: s.Foreground,
	}
}

// SettingsFromValues overlays stored values on the defaults. Unknown keys are
// ignored; invalid values keep the default and are reported.
func SettingsFromValues(values map[string]string) (Settings, error) {
	out := DefaultSettings()
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var firstErr error
	for _, key := range keys {
		switch key {
		case SettingFontFamily, SettingFontSize, SettingBackground, SettingForeground:
		default:
			continue
		}
		next, err := out.With(key, values[key])
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = next
	}
	return out, firstErr
}

func resolveColor(palette map[string]string, value string) string {
	if hex, ok := palette[value]; ok {
		return hex
	}
	for name, hex := range palette {
		if strings.EqualFold(name, value) {
			return hex
		}
	}
	return strings.ToLower(value)
}
