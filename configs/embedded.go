// Package configs provides embedded configuration files for feed-alerts.
package configs

import (
	"embed"
	"encoding/json"
	"fmt"
)

// EmbeddedConfigs exposes embedded configuration files for read-only access.
//
//go:embed *.json
var EmbeddedConfigs embed.FS

// Lists is the watch list: which feeds to poll and which keywords make an item relevant.
type Lists struct {
	Feeds    []string `json:"feeds" yaml:"feeds"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// DefaultLists returns the built-in feed and keyword lists.
func DefaultLists() (Lists, error) {
	var lists Lists

	data, err := EmbeddedConfigs.ReadFile("defaults.json")
	if err != nil {
		return lists, fmt.Errorf("read embedded defaults: %w", err)
	}
	if err := json.Unmarshal(data, &lists); err != nil {
		return lists, fmt.Errorf("decode embedded defaults: %w", err)
	}
	return lists, nil
}
