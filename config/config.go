// Package config loads the YAML configuration shared by the trainer and the
// prediction server.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v2"

	"tempcast/ml"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Artifact ArtifactConfig `yaml:"artifact"`
	Training TrainingConfig `yaml:"training"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log LogConfig `yaml:"log"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// ArtifactConfig 描述服务端查找模型文件的位置
// Name为空时按训练候选顺序查找所有模型名
type ArtifactConfig struct {
	Name                 string   `yaml:"name"`
	Extension            string   `yaml:"extension"`
	SearchDirs           []string `yaml:"search_dirs"`
	IncludeExecutableDir bool     `yaml:"include_executable_dir"`
}

type TrainingConfig struct {
	Seed       int64   `yaml:"seed"`
	StartYear  int     `yaml:"start_year"`
	EndYear    int     `yaml:"end_year"`
	Slope      float64 `yaml:"slope"`
	NoiseStd   float64 `yaml:"noise_std"`
	TestRatio  float64 `yaml:"test_ratio"`
	OutputDir  string  `yaml:"output_dir"`
	Estimators int     `yaml:"estimators"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default 默认配置
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Artifact: ArtifactConfig{
			Extension:            ".model",
			SearchDirs:           []string{".", "../linear_regression", "linear_regression"},
			IncludeExecutableDir: true,
		},
		Training: TrainingConfig{
			Seed:       42,
			StartYear:  1961,
			EndYear:    2020,
			Slope:      0.02,
			NoiseStd:   0.3,
			TestRatio:  0.2,
			OutputDir:  ".",
			Estimators: 100,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
	cfg.Database.Path = "training.db"
	return cfg
}

// Load reads path on top of the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Training.StartYear > c.Training.EndYear {
		return errors.New("training.start_year after training.end_year")
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		return fmt.Errorf("training.test_ratio %v must be in (0, 1)", c.Training.TestRatio)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ArtifactFiles lists the file names the server accepts. A configured name
// comes first, followed by every variant the trainer can save.
func (c *Config) ArtifactFiles() []string {
	ext := c.Artifact.Extension
	if ext == "" {
		ext = ml.DefaultArtifactExt
	}
	names := make([]string, 0, len(ml.Variants())+1)
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, ml.ArtifactFileName(name, ext))
	}
	add(c.Artifact.Name)
	for _, v := range ml.Variants() {
		add(v.DisplayName())
	}
	return names
}

// SearchPaths lists artifact candidates in lookup order: each file name across
// all search dirs, then the executable's directory.
func (c *Config) SearchPaths() []string {
	var exeDir string
	if c.Artifact.IncludeExecutableDir {
		if exe, err := os.Executable(); err == nil {
			exeDir = filepath.Dir(exe)
		}
	}

	var paths []string
	for _, name := range c.ArtifactFiles() {
		for _, dir := range c.Artifact.SearchDirs {
			if dir == "" || dir == "." {
				paths = append(paths, name)
				continue
			}
			paths = append(paths, filepath.Join(dir, name))
		}
		if exeDir != "" {
			paths = append(paths, filepath.Join(exeDir, name))
		}
	}
	return paths
}

// Holder 持有当前生效的配置，支持热更新
type Holder struct {
	current atomic.Pointer[Config]
}

func NewHolder(cfg *Config) *Holder {
	h := &Holder{}
	h.current.Store(cfg)
	return h
}

func (h *Holder) Get() *Config {
	return h.current.Load()
}

func (h *Holder) Set(cfg *Config) {
	h.current.Store(cfg)
}
