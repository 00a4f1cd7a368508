package runtimeconfig

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const configHeader = "# restoredit user config (KEY=value, environment wins)"

// FileConfig is the user config file, ~/.restoredit/config by default.
type FileConfig struct {
	Path   string
	Values map[string]string
}

func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory failed: %w", err)
	}
	return filepath.Join(homeDir, ".restoredit", "config"), nil
}

// Load reads path, or the default path when empty. A missing file yields an
// empty config.
func Load(path string) (FileConfig, error) {
	configPath := strings.TrimSpace(path)
	if configPath == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return FileConfig{}, err
		}
		configPath = defaultPath
	}

	file, openError := os.Open(configPath)
	if os.IsNotExist(openError) {
		return FileConfig{Path: configPath, Values: map[string]string{}}, nil
	}
	if openError != nil {
		return FileConfig{}, fmt.Errorf("open config failed: %w", openError)
	}
	defer file.Close()

	values, parseError := parseValues(file)
	if parseError != nil {
		return FileConfig{}, fmt.Errorf("read config %s failed: %w", configPath, parseError)
	}
	return FileConfig{Path: configPath, Values: values}, nil
}

// parseValues accepts KEY=value lines, optionally prefixed with "export" and
// with the value in double quotes, so the file can be sourced by a shell.
func parseValues(reader io.Reader) (map[string]string, error) {
	values := map[string]string{}
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, found := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if unquoted, unquoteError := strconv.Unquote(value); unquoteError == nil && strings.HasPrefix(value, `"`) {
			value = unquoted
		}
		values[key] = value
	}
	if scanError := scanner.Err(); scanError != nil {
		return nil, scanError
	}
	return values, nil
}

// Save rewrites the config with sorted keys. The file is created 0600 since
// it holds the hub token, and replaced atomically.
func Save(config FileConfig) error {
	if strings.TrimSpace(config.Path) == "" {
		return fmt.Errorf("config path is required")
	}
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory failed: %w", err)
	}

	keys := make([]string, 0, len(config.Values))
	for key := range config.Values {
		if strings.TrimSpace(key) != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(configHeader + "\n")
	for _, key := range keys {
		fmt.Fprintf(&builder, "%s=%s\n", strings.TrimSpace(key), strings.TrimSpace(config.Values[key]))
	}

	temp, createError := os.CreateTemp(dir, ".config-*")
	if createError != nil {
		return fmt.Errorf("write config failed: %w", createError)
	}
	tempPath := temp.Name()
	if _, writeError := temp.WriteString(builder.String()); writeError != nil {
		temp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write config failed: %w", writeError)
	}
	if closeError := temp.Close(); closeError != nil {
		os.Remove(tempPath)
		return fmt.Errorf("write config failed: %w", closeError)
	}
	if renameError := os.Rename(tempPath, config.Path); renameError != nil {
		os.Remove(tempPath)
		return fmt.Errorf("replace config failed: %w", renameError)
	}
	return nil
}

// ResolveString prefers the environment over config values.
func ResolveString(key string, values map[string]string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(values[key])
}

func ResolveBool(key string, values map[string]string, fallback bool) bool {
	switch strings.ToLower(ResolveString(key, values)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
