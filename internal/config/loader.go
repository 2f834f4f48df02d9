package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/paybench/internal/errdefs"
)

// LoadConfig reads a test file. Only .yaml, .yml and .json files are
// accepted.
func LoadConfig(path string) (*TestConfig, error) {
	if _, err := formatOf(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errdefs.NewConfigError("config", "%s is empty", path)
	}

	return ParseConfig(data, path)
}

// ParseConfig decodes a test file chosen by the extension of path. Unknown
// keys are rejected so a misspelt threshold or stage field never silently
// falls back to a default.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	var cfg TestConfig
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	}

	return &cfg, nil
}

func formatOf(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return "json", nil
	case ".yaml", ".yml":
		return "yaml", nil
	default:
		return "", errdefs.NewConfigError("config", "unsupported config file %q: use .yaml, .yml or .json", path)
	}
}

// ParseDurationString parses a Go duration ("30s", "1m30s", "500ms") or a
// bare integer number of seconds ("30"). The empty string is zero.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration %q: want a Go duration such as 30s or a number of seconds", s)
}
