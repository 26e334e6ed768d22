// Package config loads and validates the application configuration from a
// TOML file, with defaults written back on first run.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/himawari-lab/pixrank/internal/domain"
)

// ValidRankingModes are the ranking list categories the upstream service
// accepts.
var ValidRankingModes = []string{
	"day", "week", "month", "day_male", "day_female", "week_original",
	"week_rookie", "day_r18", "day_male_r18", "day_female_r18",
	"week_r18", "week_r18g",
}

const defaultExcludedTags = "manga, muscle, otokonoko, young boy, shota, furry, gay, homo, bodybuilding, macho, yaoi, futa, futanari, *漫画*"

// Config holds all application configuration.
type Config struct {
	Host     string
	Port     string
	LogLevel string

	// Crawler
	DBPath               string
	StoreMode            domain.StoreMode
	DownloadFolder       string
	DownloadQuality      domain.Quality
	DownloadReverseProxy string
	RankingModes         []string
	ExcludedTags         []string
	GetAllRankingPages   bool
	AllowMultiplePages   bool
	GetAllMultiplePages  bool
	UnicodeFilenames     bool
	UpdateInterval       time.Duration
	MaxRateLimitRetries  int

	// API
	PrivilegeAPIKey string
	ReverseProxy    string
	ImageNumLimit   int
	AuthorNumLimit  int
	TagNumLimit     int

	// Auth (token pair for the upstream app API; refreshing it is handled
	// by an external collaborator)
	AccessToken  string
	RefreshToken string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8000")
	v.SetDefault("log.level", "info")

	v.SetDefault("crawler.db_path", "db.sqlite3")
	v.SetDefault("crawler.store_mode", "light")
	v.SetDefault("crawler.download_folder", "downloads")
	v.SetDefault("crawler.download_quality", "original")
	v.SetDefault("crawler.download_reverse_proxy", "i.pixiv.re")
	v.SetDefault("crawler.ranking_modes", "day, day_r18, week, week_r18")
	v.SetDefault("crawler.excluding_tags", defaultExcludedTags)
	v.SetDefault("crawler.get_all_ranking_pages", false)
	v.SetDefault("crawler.allow_multiple_pages", false)
	v.SetDefault("crawler.get_all_multiple_pages", false)
	v.SetDefault("crawler.unicode_filenames", true)
	v.SetDefault("crawler.update_interval", 0)
	v.SetDefault("crawler.max_rate_limit_retries", 5)

	v.SetDefault("api.privilege_api_key", "")
	v.SetDefault("api.reverse_proxy", "i.pixiv.re")
	v.SetDefault("api.image_num_limit", 10)
	v.SetDefault("api.author_num_limit", 5)
	v.SetDefault("api.tag_num_limit", 10)

	v.SetDefault("auth.access_token", "")
	v.SetDefault("auth.refresh_token", "")
}

// SplitList splits a comma-separated config value, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Host:     v.GetString("server.host"),
		Port:     v.GetString("server.port"),
		LogLevel: v.GetString("log.level"),

		DBPath:               v.GetString("crawler.db_path"),
		StoreMode:            domain.StoreMode(v.GetString("crawler.store_mode")),
		DownloadFolder:       v.GetString("crawler.download_folder"),
		DownloadQuality:      domain.Quality(v.GetString("crawler.download_quality")),
		DownloadReverseProxy: v.GetString("crawler.download_reverse_proxy"),
		RankingModes:         SplitList(v.GetString("crawler.ranking_modes")),
		ExcludedTags:         SplitList(v.GetString("crawler.excluding_tags")),
		GetAllRankingPages:   v.GetBool("crawler.get_all_ranking_pages"),
		AllowMultiplePages:   v.GetBool("crawler.allow_multiple_pages"),
		GetAllMultiplePages:  v.GetBool("crawler.get_all_multiple_pages"),
		UnicodeFilenames:     v.GetBool("crawler.unicode_filenames"),
		UpdateInterval:       time.Duration(v.GetInt("crawler.update_interval")) * time.Second,
		MaxRateLimitRetries:  v.GetInt("crawler.max_rate_limit_retries"),

		PrivilegeAPIKey: v.GetString("api.privilege_api_key"),
		ReverseProxy:    v.GetString("api.reverse_proxy"),
		ImageNumLimit:   v.GetInt("api.image_num_limit"),
		AuthorNumLimit:  v.GetInt("api.author_num_limit"),
		TagNumLimit:     v.GetInt("api.tag_num_limit"),

		AccessToken:  v.GetString("auth.access_token"),
		RefreshToken: v.GetString("auth.refresh_token"),
	}
	// Lowercase exclusion patterns once; matching is case-insensitive.
	for i, tag := range cfg.ExcludedTags {
		cfg.ExcludedTags[i] = strings.ToLower(tag)
	}
	return cfg
}

// Validate checks the configuration and returns all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Port == "" {
		errs = append(errs, "server.port cannot be empty")
	}
	if c.DBPath == "" {
		errs = append(errs, "crawler.db_path cannot be empty")
	}
	if c.StoreMode != domain.StoreModeLight && c.StoreMode != domain.StoreModeFull {
		errs = append(errs, fmt.Sprintf("crawler.store_mode must be light or full, got: %s", c.StoreMode))
	}
	if c.StoreMode == domain.StoreModeFull && c.DownloadFolder == "" {
		errs = append(errs, "crawler.download_folder cannot be empty in full store mode")
	}
	switch c.DownloadQuality {
	case domain.QualityOriginal, domain.QualityLarge, domain.QualityMedium:
	default:
		errs = append(errs, fmt.Sprintf("crawler.download_quality must be original, large or medium, got: %s", c.DownloadQuality))
	}
	if len(c.RankingModes) == 0 {
		errs = append(errs, "crawler.ranking_modes cannot be empty")
	}
	for _, mode := range c.RankingModes {
		valid := false
		for _, known := range ValidRankingModes {
			if mode == known {
				valid = true
				break
			}
		}
		if !valid {
			errs = append(errs, fmt.Sprintf("crawler.ranking_modes contains unknown mode: %s", mode))
		}
	}
	if c.UpdateInterval < 0 {
		errs = append(errs, "crawler.update_interval cannot be negative")
	}
	if c.MaxRateLimitRetries < 0 {
		errs = append(errs, "crawler.max_rate_limit_retries cannot be negative")
	}
	if c.ImageNumLimit < 1 {
		errs = append(errs, "api.image_num_limit must be at least 1")
	}
	if c.AuthorNumLimit < 1 {
		errs = append(errs, "api.author_num_limit must be at least 1")
	}
	if c.TagNumLimit < 1 {
		errs = append(errs, "api.tag_num_limit must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Manager owns the current configuration snapshot and supports reloads.
type Manager struct {
	mu  sync.RWMutex
	v   *viper.Viper
	cfg *Config
}

// NewManager reads the configuration file at path (created with defaults if
// missing) and returns a manager holding the validated snapshot.
func NewManager(path string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// First run: persist the defaults so the operator has a file to edit.
		if werr := v.WriteConfigAs(path); werr != nil {
			return nil, fmt.Errorf("failed to write default config: %w", werr)
		}
	}

	m := &Manager{v: v}
	if err := m.refresh(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads the configuration file and swaps the snapshot.
func (m *Manager) Reload() error {
	if err := m.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	return m.refresh()
}

func (m *Manager) refresh() error {
	cfg := fromViper(m.v)
	if cfg.PrivilegeAPIKey == "" {
		// Same bootstrap behavior as a missing key: generate one and
		// persist it so privileged calls stay reachable across restarts.
		cfg.PrivilegeAPIKey = strings.ReplaceAll(uuid.NewString(), "-", "")
		m.v.Set("api.privilege_api_key", cfg.PrivilegeAPIKey)
		_ = m.v.WriteConfig()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

// Current returns the active configuration snapshot.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}
