// Package config resolves sfs settings from defaults, JSONC config files and
// command-line overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Error variables for config loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrDeviceEmpty        = errors.New("device cannot be empty")
	ErrLogLevel           = errors.New("log_level must be one of debug, info, warn, error")
	ErrDriver             = errors.New("driver must be one of file, mem")
)

// Driver names.
const (
	DriverFile = "file"
	DriverMem  = "mem"
)

// FileName is the project config file name.
const FileName = ".sfs.json"

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Device   string `json:"device"`
	LogLevel string `json:"log_level"`
	Driver   string `json:"driver"`

	// Resolved (computed, not serialized)
	EffectiveCwd string `json:"-"` // Absolute working directory (from -C flag or os.Getwd)
	DeviceAbs    string `json:"-"` // Absolute path to the device image

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Device:   "disk.img",
		LogLevel: "warn",
		Driver:   DriverFile,
	}
}

// Level returns the slog level for LogLevel.
func (c Config) Level() slog.Level {
	var lvl slog.Level

	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn
	}

	return lvl
}

// globalPath returns $XDG_CONFIG_HOME/sfs/config.json, falling back to
// ~/.config/sfs/config.json. Empty if neither variable is set.
func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "sfs", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "sfs", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	DeviceOverride  string            // -d/--device flag value; empty means no override
	Env             map[string]string // environment variables
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config file (.sfs.json, if exists)
// 4. Explicit config file via ConfigPath (replaces 3)
// 5. CLI overrides.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return Config{}, fmt.Errorf("cannot resolve working directory: %w", err)
	}

	cfg := Default()

	if path := globalPath(input.Env); path != "" {
		globalCfg, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, globalCfg)
			cfg.Sources.Global = path
		}
	}

	projectPath := filepath.Join(workDir, FileName)
	mustExist := false

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true

		if _, statErr := os.Stat(projectPath); statErr != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigFileNotFound, input.ConfigPath)
		}
	}

	projectCfg, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, projectCfg)
		cfg.Sources.Project = projectPath
	}

	if input.DeviceOverride != "" {
		cfg.Device = input.DeviceOverride
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.Device) {
		cfg.DeviceAbs = cfg.Device
	} else {
		cfg.DeviceAbs = filepath.Join(workDir, cfg.Device)
	}

	return cfg, nil
}

// loadFile reads one config file. A missing optional file is not an error
// and reports loaded=false.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
	}

	cfg, err := parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	// An explicit "device": "" is an error, not "use the default".
	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	if val, ok := raw["device"]; ok {
		if s, isString := val.(string); isString && s == "" {
			return Config{}, ErrDeviceEmpty
		}
	}

	if cfg.LogLevel != "" {
		if err := validateLevel(cfg.LogLevel); err != nil {
			return Config{}, err
		}
	}

	if cfg.Driver != "" {
		if err := validateDriver(cfg.Driver); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.Device != "" {
		base.Device = overlay.Device
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	if overlay.Driver != "" {
		base.Driver = overlay.Driver
	}

	return base
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Device) == "" {
		return ErrDeviceEmpty
	}

	if err := validateLevel(cfg.LogLevel); err != nil {
		return err
	}

	return validateDriver(cfg.Driver)
}

func validateLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("%w, got %q", ErrLogLevel, level)
	}
}

func validateDriver(driver string) error {
	switch driver {
	case DriverFile, DriverMem:
		return nil
	default:
		return fmt.Errorf("%w, got %q", ErrDriver, driver)
	}
}
