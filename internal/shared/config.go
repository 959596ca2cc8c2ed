package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Storage     StorageConfig     `toml:"storage"`
	Matching    MatchingConfig    `toml:"matching"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
}

// StorageConfig contains paths for the ledger, source exports and the library cache.
type StorageConfig struct {
	DataDir       string `toml:"data_dir"`
	DatabasePath  string `toml:"database_path"`
	LikesFile     string `toml:"likes_file"`
	PlaylistsFile string `toml:"playlists_file"`
}

// MatchingConfig contains tuning knobs for the reconciliation pipeline.
type MatchingConfig struct {
	Threshold     float64 `toml:"threshold"`
	BatchSize     int     `toml:"batch_size"`
	PageSize      int     `toml:"page_size"`
	SearchPerSec  float64 `toml:"search_per_sec"`
	CandidateStop int     `toml:"candidate_stop"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyDefaults()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyDefaults fills zero values with the defaults the pipeline expects.
func (c *Config) applyDefaults() {
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = filepath.Join(c.Storage.DataDir, "ymx.db")
	}
	if c.Storage.LikesFile == "" {
		c.Storage.LikesFile = filepath.Join(c.Storage.DataDir, "yandex_music_likes.json")
	}
	if c.Storage.PlaylistsFile == "" {
		c.Storage.PlaylistsFile = filepath.Join(c.Storage.DataDir, "yandex_playlists.json")
	}
	if c.Matching.Threshold <= 0 {
		c.Matching.Threshold = 0.7
	}
	if c.Matching.BatchSize <= 0 {
		c.Matching.BatchSize = 40
	}
	if c.Matching.PageSize <= 0 {
		c.Matching.PageSize = 50
	}
	if c.Matching.SearchPerSec <= 0 {
		c.Matching.SearchPerSec = 5.0
	}
	if c.Matching.CandidateStop <= 0 {
		c.Matching.CandidateStop = 5
	}
}
