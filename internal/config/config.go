package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings for one publishing run.
type Config struct {
	// WebsiteURL is the vendor page scraped for the current download link.
	WebsiteURL string `yaml:"website_url"`
	// DownloadURL, when set, bypasses scraping and is used as the direct artifact link.
	DownloadURL string `yaml:"download_url"`
	// Repository is the release destination in "owner/name" form.
	Repository string `yaml:"repository"`
	// ProductName prefixes published asset names.
	ProductName string `yaml:"product_name"`
	// ProductTitle is the human-readable product name used in release titles.
	ProductTitle string `yaml:"product_title"`
	// AppName is the bundle name expected inside the mounted disk image.
	AppName string `yaml:"app_name"`
	// WorkDir is where temporary artifacts are staged during a run.
	WorkDir string `yaml:"work_dir"`
	// Timeout is the duration for individual network operations.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default filename for run settings.
	DefaultConfigFilename = "wechat-mac-releaser.yaml"

	// DefaultWebsiteURL is the vendor page carrying the download button.
	DefaultWebsiteURL = "https://mac.weixin.qq.com/?t=mac&lang=zh_CN"

	// DefaultProductName prefixes asset names.
	DefaultProductName = "WeChatMac"

	// DefaultProductTitle is the human-readable product name for release titles.
	DefaultProductTitle = "WeChat For Mac"

	// DefaultAppName is the application bundle name inside the disk image.
	DefaultAppName = "WeChat"

	// DefaultWorkDir is the staging directory created under the working directory.
	DefaultWorkDir = "WeChatMac"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 30 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// repositoryParts is the expected number of "/"-separated repository segments.
	repositoryParts = 2
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errRepositoryRequired is returned when the release repository is missing.
	errRepositoryRequired = errors.New("release repository must be provided")
	// errRepositoryFormat is returned when the repository is not "owner/name".
	errRepositoryFormat = errors.New("release repository must be in owner/name form")
)

// Read loads configuration from the provided path without validating it,
// so callers can apply command-line overrides first. A missing file yields
// an empty configuration.
func Read(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	var cfg Config

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err == nil {
		if err = yaml.Unmarshal(contents, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}

	return &cfg, nil
}

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills in defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	// Apply defaults before validating formats.
	if cfg.WebsiteURL == "" && cfg.DownloadURL == "" {
		cfg.WebsiteURL = DefaultWebsiteURL
	}

	if cfg.ProductName == "" {
		cfg.ProductName = DefaultProductName
	}

	if cfg.ProductTitle == "" {
		cfg.ProductTitle = DefaultProductTitle
	}

	if cfg.AppName == "" {
		cfg.AppName = DefaultAppName
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = DefaultWorkDir
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.Repository == "" {
		return errRepositoryRequired
	}

	parts := strings.Split(cfg.Repository, "/")
	if len(parts) != repositoryParts || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("%w: %s", errRepositoryFormat, cfg.Repository)
	}

	if cfg.WebsiteURL != "" {
		if _, err := url.ParseRequestURI(cfg.WebsiteURL); err != nil {
			return fmt.Errorf("invalid website URL: %w", err)
		}
	}

	if cfg.DownloadURL != "" {
		if _, err := url.ParseRequestURI(cfg.DownloadURL); err != nil {
			return fmt.Errorf("invalid download URL: %w", err)
		}
	}

	return nil
}
