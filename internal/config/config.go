package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/opencode-ai/wagate/pkg/types"
)

// Defaults applied after all sources are merged.
const (
	DefaultPort      = 8000
	DefaultHostname  = "0.0.0.0"
	DefaultQueueSize = 64
	DefaultMaxMedia  = 16 << 20
	DefaultPairDelay = 5 * time.Second
	DefaultTokenTTL  = time.Hour
)

// configNames are the file names tried in every config directory, in
// load order.
var configNames = []string{"wagate.json", "wagate.jsonc", "wagate.yaml", "wagate.yml", "wagate.toml"}

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// Load loads configuration from multiple sources (priority order):
// 1. .env in directory (existing environment wins)
// 2. Global config (~/.config/wagate/)
// 3. Project config (directory and directory/.wagate/)
// 4. WAGATE_CONFIG file
// 5. WAGATE_CONFIG_CONTENT inline JSON
// 6. Environment variables
//
// Missing files are skipped. A file that exists but cannot be parsed is an error.
func Load(directory string) (*types.Config, error) {
	if directory != "" {
		if err := godotenv.Load(filepath.Join(directory, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	config := &types.Config{}
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config, baseDir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
		loaded[absPath] = true
		return nil
	}

	dirs := []string{GetConfigDir()}
	if directory != "" {
		dirs = append(dirs, directory, filepath.Join(directory, ".wagate"))
	}
	for _, dir := range dirs {
		for _, name := range configNames {
			if err := loadOnce(filepath.Join(dir, name), dir); err != nil {
				return nil, err
			}
		}
	}

	if configPath := os.Getenv("WAGATE_CONFIG"); configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("WAGATE_CONFIG: %w", err)
		}
		if err := loadOnce(configPath, filepath.Dir(configPath)); err != nil {
			return nil, err
		}
	}

	if configContent := os.Getenv("WAGATE_CONFIG_CONTENT"); configContent != "" {
		var inline types.Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(configContent)), &inline); err != nil {
			return nil, fmt.Errorf("WAGATE_CONFIG_CONTENT: %w", err)
		}
		mergeConfig(config, &inline)
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	applyDefaults(config, GetPaths())
	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
// The format follows the file extension.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fileConfig types.Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data = interpolate(data, baseDir)
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	case ".toml":
		data = interpolate(data, baseDir)
		if _, err := toml.Decode(string(data), &fileConfig); err != nil {
			return err
		}
	default:
		data = jsonc.ToJSON(data)
		data = interpolate(data, baseDir)
		if err := json.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
// File contents are escaped for use inside a double-quoted string, which
// reads the same in JSON, YAML and TOML.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match
		}

		escaped := strings.TrimRight(string(content), "\r\n")
		escaped = strings.ReplaceAll(escaped, "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")
		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source config into target. Zero values in source
// leave target untouched; lists replace.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Port != 0 {
		target.Port = source.Port
	}
	if source.Hostname != "" {
		target.Hostname = source.Hostname
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}

	if source.Registry.Path != "" {
		target.Registry.Path = source.Registry.Path
	}
	if source.Registry.Backend != "" {
		target.Registry.Backend = source.Registry.Backend
	}
	if source.Registry.Watch {
		target.Registry.Watch = true
	}

	if source.Credentials.Path != "" {
		target.Credentials.Path = source.Credentials.Path
	}

	if len(source.Auth.Users) > 0 {
		target.Auth.Users = source.Auth.Users
	}
	if source.Auth.TokenTTL != 0 {
		target.Auth.TokenTTL = source.Auth.TokenTTL
	}

	if source.Restart.InitialInterval != 0 {
		target.Restart.InitialInterval = source.Restart.InitialInterval
	}
	if source.Restart.MaxInterval != 0 {
		target.Restart.MaxInterval = source.Restart.MaxInterval
	}
	if source.Restart.MaxElapsed != 0 {
		target.Restart.MaxElapsed = source.Restart.MaxElapsed
	}

	if source.Bus.QueueSize != 0 {
		target.Bus.QueueSize = source.Bus.QueueSize
	}
	if len(source.CORS.Origins) > 0 {
		target.CORS.Origins = source.CORS.Origins
	}
	if source.Media.MaxBytes != 0 {
		target.Media.MaxBytes = source.Media.MaxBytes
	}
	if source.Driver.PairDelay != 0 {
		target.Driver.PairDelay = source.Driver.PairDelay
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) error {
	for _, key := range []string{"PORT", "WAGATE_PORT"} {
		if v := os.Getenv(key); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: invalid port %q", key, v)
			}
			config.Port = port
		}
	}
	if v := os.Getenv("WAGATE_HOSTNAME"); v != "" {
		config.Hostname = v
	}
	if v := os.Getenv("WAGATE_REGISTRY"); v != "" {
		config.Registry.Path = v
	}
	if v := os.Getenv("WAGATE_REGISTRY_BACKEND"); v != "" {
		config.Registry.Backend = v
	}
	if v := os.Getenv("WAGATE_AUTH_USERS"); v != "" {
		config.Auth.Users = splitList(v)
	}
	if v := os.Getenv("WAGATE_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	return nil
}

func applyDefaults(config *types.Config, paths *Paths) {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Hostname == "" {
		config.Hostname = DefaultHostname
	}
	if config.Registry.Backend == "" {
		config.Registry.Backend = "file"
	}
	if config.Registry.Path == "" {
		config.Registry.Path = paths.RegistryPath()
		if config.Registry.Backend == "sqlite" {
			config.Registry.Path = filepath.Join(paths.Data, "sessions.db")
		}
	}
	if config.Credentials.Path == "" {
		config.Credentials.Path = paths.CredentialsPath()
	}
	if config.Auth.TokenTTL == 0 {
		config.Auth.TokenTTL = types.Duration(DefaultTokenTTL)
	}
	if config.Bus.QueueSize == 0 {
		config.Bus.QueueSize = DefaultQueueSize
	}
	if config.Media.MaxBytes == 0 {
		config.Media.MaxBytes = DefaultMaxMedia
	}
	if config.Driver.PairDelay == 0 {
		config.Driver.PairDelay = types.Duration(DefaultPairDelay)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
