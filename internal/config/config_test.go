package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/himawari-lab/pixrank/internal/domain"
)

func TestNewManager_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	cfg := m.Current()

	if cfg.DBPath != "db.sqlite3" {
		t.Errorf("expected default db path, got %s", cfg.DBPath)
	}
	if cfg.StoreMode != domain.StoreModeLight {
		t.Errorf("expected light store mode, got %s", cfg.StoreMode)
	}
	if cfg.DownloadQuality != domain.QualityOriginal {
		t.Errorf("expected original quality, got %s", cfg.DownloadQuality)
	}
	if len(cfg.RankingModes) != 4 {
		t.Errorf("expected 4 default ranking modes, got %v", cfg.RankingModes)
	}
	if cfg.MaxRateLimitRetries != 5 {
		t.Errorf("expected 5 retries, got %d", cfg.MaxRateLimitRetries)
	}
	if cfg.UpdateInterval != 0 {
		t.Errorf("expected background crawl disabled, got %v", cfg.UpdateInterval)
	}
	if cfg.PrivilegeAPIKey == "" {
		t.Error("expected a generated privilege api key")
	}

	// The default file must have been written out.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to be created: %v", err)
	}
}

func TestNewManager_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
port = "9000"

[crawler]
store_mode = "full"
ranking_modes = "day, week"
excluding_tags = "Manga, *Furry*"
update_interval = 3600

[api]
privilege_api_key = "secret"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	cfg := m.Current()

	if cfg.Port != "9000" {
		t.Errorf("expected port 9000, got %s", cfg.Port)
	}
	if cfg.StoreMode != domain.StoreModeFull {
		t.Errorf("expected full store mode, got %s", cfg.StoreMode)
	}
	if len(cfg.RankingModes) != 2 || cfg.RankingModes[0] != "day" || cfg.RankingModes[1] != "week" {
		t.Errorf("unexpected ranking modes: %v", cfg.RankingModes)
	}
	// Exclusion patterns are lowercased at load time.
	if cfg.ExcludedTags[0] != "manga" || cfg.ExcludedTags[1] != "*furry*" {
		t.Errorf("unexpected excluded tags: %v", cfg.ExcludedTags)
	}
	if cfg.UpdateInterval != time.Hour {
		t.Errorf("expected 1h update interval, got %v", cfg.UpdateInterval)
	}
	if cfg.PrivilegeAPIKey != "secret" {
		t.Errorf("expected configured api key, got %s", cfg.PrivilegeAPIKey)
	}
}

func TestValidate(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := *m.Current()

	cfg.StoreMode = "bogus"
	cfg.DownloadQuality = "tiny"
	cfg.RankingModes = []string{"day", "yearly"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid config")
	}

	good := *m.Current()
	if err := good.Validate(); err != nil {
		t.Errorf("expected default config to validate, got %v", err)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" a, b ,, c ,")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("unexpected split result: %v", got)
	}
	if SplitList("") != nil {
		t.Error("expected nil for empty input")
	}
}
