package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pkt.systems/qermital/schema"
)

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != schema.DefaultSettings() {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	want := schema.Settings{FontFamily: "Hack", FontSize: 12, Background: "#000000", Foreground: "#00ff00"}
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Fatalf("settings mismatch:\nwant: %+v\ngot:  %+v", want, got)
	}
}

func TestStoreLoadToleratesLooseValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"font_size": 16, "background_color": "Nord", "foreground_color": "pink", "extra": true}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, _ := NewStore(path)
	got, err := store.Load()
	if !errors.Is(err, schema.ErrInvalidSetting) {
		t.Fatalf("expected invalid foreground reported, got %v", err)
	}
	if got.FontSize != 16 || got.Background != "#2e3440" || got.Foreground != schema.DefaultSettings().Foreground {
		t.Fatalf("unexpected settings %+v", got)
	}
}

func TestStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not-json"), 0o600); err != nil {
		t.Fatalf("write bad json: %v", err)
	}
	store, _ := NewStore(path)
	got, err := store.Load()
	if err == nil {
		t.Fatalf("expected error for invalid json")
	}
	if got != schema.DefaultSettings() {
		t.Fatalf("expected defaults on error, got %+v", got)
	}
}

func TestStoreSet(t *testing.T) {
	store, _ := NewStore(filepath.Join(t.TempDir(), "settings.json"))
	got, err := store.Set(schema.SettingFontSize, "18")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if got.FontSize != 18 {
		t.Fatalf("expected font size 18, got %d", got.FontSize)
	}
	if _, err := store.Set(schema.SettingFontSize, "2"); !errors.Is(err, schema.ErrInvalidSetting) {
		t.Fatalf("expected invalid setting, got %v", err)
	}
	reloaded, err := store.Load()
	if err != nil || reloaded.FontSize != 18 {
		t.Fatalf("expected persisted 18, got %+v %v", reloaded, err)
	}
}

func TestNewStoreRequiresPath(t *testing.T) {
	if _, err := NewStore(" "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
