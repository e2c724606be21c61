// Package config loads JSON or YAML documents, such as watch lists, from a local file or
// a remote URL.
package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	httputil "github.com/lepinkainen/feed-alerts/pkg/http"
)

// LoadSource loads a document from source, which is either an http(s) URL or a file path.
func LoadSource(source string, timeout time.Duration, target any) error {
	if IsRemote(source) {
		return loadFromURL(source, timeout, target)
	}
	return loadFromFile(source, target)
}

// IsRemote reports whether source should be fetched over HTTP.
func IsRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// loadFromURL fetches a document once, without retries, and decodes it into target.
func loadFromURL(url string, timeout time.Duration, target any) error {
	httpConfig := httputil.DefaultConfig()
	httpConfig.Timeout = timeout
	httpConfig.MaxRetries = 0
	httpConfig.Headers = map[string]string{"Accept": "application/json, application/yaml, text/yaml, */*"}

	client := httputil.NewClient(httpConfig)
	resp, err := client.GetWithContext(context.Background(), url)
	if err != nil {
		return fmt.Errorf("failed to fetch config from URL: %w", err)
	}

	if err := httputil.EnsureStatusOK(resp); err != nil {
		resp.Body.Close()
		return fmt.Errorf("HTTP error fetching config: %w", err)
	}

	data, err := httputil.ReadResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read config response: %w", err)
	}

	if err := decode(url, data, target); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}

	return nil
}

// loadFromFile loads configuration from a local file
func loadFromFile(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}

	return decode(path, data, target)
}

func decode(path string, data []byte, target any) error {
	switch detectFormat(path, data) {
	case "json":
		if err := json.Unmarshal(data, target); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, target); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	return nil
}

// detectFormat picks the decoder from the file extension, then from the content.
func detectFormat(path string, data []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return "json"
	}
	return "yaml"
}
