package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Format        string   `mapstructure:"format"`
	Prefix        string   `mapstructure:"prefix"`
	Suffix        string   `mapstructure:"suffix"`
	Pattern       string   `mapstructure:"pattern"`
	Fallback      string   `mapstructure:"fallback"`
	ParseFilename bool     `mapstructure:"parse_filename"`
	XMPSidecar    bool     `mapstructure:"xmp_sidecar"`
	TakeoutJSON   bool     `mapstructure:"takeout_json"`
	ExifTool      string   `mapstructure:"exiftool"`
	Workers       string   `mapstructure:"workers"`
	Parallel      bool     `mapstructure:"parallel"`
	Recursive     bool     `mapstructure:"recursive"`
	MediaOnly     bool     `mapstructure:"media_only"`
	SkipSidecars  bool     `mapstructure:"skip_sidecars"`
	ImageExt      []string `mapstructure:"image_extensions"`
	VideoExt      []string `mapstructure:"video_extensions"`
	StateDir      string   `mapstructure:"state_dir"`
	LogLines      int      `mapstructure:"log_lines"`
	LogLevel      string   `mapstructure:"log_level"`
}

// ConfigDir is where exifrename.toml is looked up.
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to find user config dir: %w", err)
	}
	return filepath.Join(configDir, "exifrename"), nil
}

// NewViper returns a viper instance with every default set and the config
// file and EXIFRENAME_* environment wired in. searchDir may be empty.
func NewViper(searchDir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("exifrename")
	v.SetConfigType("toml")
	if searchDir != "" {
		v.AddConfigPath(searchDir)
	}
	v.SetEnvPrefix("EXIFRENAME")
	v.AutomaticEnv()

	stateDir := searchDir
	if stateDir == "" {
		stateDir = filepath.Join(os.TempDir(), "exifrename")
	}

	v.SetDefault("format", DefaultTemplate)
	v.SetDefault("prefix", "")
	v.SetDefault("suffix", "")
	v.SetDefault("pattern", string(PatternDate))
	v.SetDefault("fallback", string(FallbackSkip))
	v.SetDefault("parse_filename", false)
	v.SetDefault("xmp_sidecar", true)
	v.SetDefault("takeout_json", true)
	v.SetDefault("exiftool", string(ExifToolAuto))
	v.SetDefault("workers", "auto")
	v.SetDefault("parallel", true)
	v.SetDefault("recursive", false)
	v.SetDefault("media_only", true)
	v.SetDefault("skip_sidecars", true)
	v.SetDefault("image_extensions", defaultImageExt)
	v.SetDefault("video_extensions", defaultVideoExt)
	v.SetDefault("state_dir", stateDir)
	v.SetDefault("log_lines", 5000)
	v.SetDefault("log_level", "info")
	return v
}

// LoadConfig reads the config file if there is one and applies defaults.
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(NewViper(dir))
}

func LoadConfigFrom(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; that's OK, just use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the scanner cannot act on.
func (c *Config) Validate() error {
	if _, err := ParsePatternMode(c.Pattern); err != nil {
		return err
	}
	if _, err := ParseFallback(c.Fallback); err != nil {
		return err
	}
	if _, err := ParseExifToolMode(c.ExifTool); err != nil {
		return err
	}
	if _, err := ParseWorkers(c.Workers); err != nil {
		return err
	}
	for name, val := range map[string]string{"prefix": c.Prefix, "suffix": c.Suffix, "format": c.Format} {
		if strings.ContainsAny(val, `/\`) {
			return fmt.Errorf("%s must not contain path separators: %q", name, val)
		}
	}
	if c.LogLines < 0 {
		return fmt.Errorf("log_lines must not be negative")
	}
	return nil
}

func (c *Config) ReadOptions() ReadOptions {
	fallback, _ := ParseFallback(c.Fallback)
	return ReadOptions{
		Deep: DeepOptions{
			ParseFilename:   c.ParseFilename,
			ReadXMPSidecar:  c.XMPSidecar,
			ReadTakeoutJSON: c.TakeoutJSON,
		},
		Fallback: fallback,
	}
}

func (c *Config) NamingOptions() NamingOptions {
	pattern, _ := ParsePatternMode(c.Pattern)
	return NamingOptions{
		Template: ParseTemplate(c.Format),
		Prefix:   c.Prefix,
		Suffix:   c.Suffix,
		Pattern:  pattern,
	}
}

// WorkerCount is 0 for auto.
func (c *Config) WorkerCount() int {
	n, _ := ParseWorkers(c.Workers)
	return n
}

func (c *Config) ExifToolMode() ExifToolMode {
	m, _ := ParseExifToolMode(c.ExifTool)
	return m
}

func (c *Config) MediaTypes() MediaTypes {
	return NewMediaTypes(c.ImageExt, c.VideoExt)
}

// ScanRequest builds a request for folder from the config.
func (c *Config) ScanRequest(folder string) ScanRequest {
	return ScanRequest{
		Folder:       folder,
		Recursive:    c.Recursive,
		MediaOnly:    c.MediaOnly,
		SkipSidecars: c.SkipSidecars,
		Read:         c.ReadOptions(),
		Naming:       c.NamingOptions(),
		Parallel:     c.Parallel,
		Workers:      c.WorkerCount(),
	}
}
