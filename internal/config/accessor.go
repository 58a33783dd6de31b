package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GetByPath returns the value at a dotted path of the config's JSON form,
// e.g. "endpoints.revolt_api" or "bridges.0.revolt_channel_id".
func GetByPath(cfg *Config, path string) (any, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	for i, key := range strings.Split(path, ".") {
		node, err = descend(node, key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.Join(strings.Split(path, ".")[:i+1], "."), err)
		}
	}
	return node, nil
}

func descend(node any, key string) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		child, ok := v[key]
		if !ok {
			return nil, fmt.Errorf("no such key")
		}
		return child, nil
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, fmt.Errorf("index out of range (have %d)", len(v))
		}
		return v[idx], nil
	default:
		return nil, fmt.Errorf("%T has no fields", node)
	}
}

// Sanitize returns a copy of cfg safe to print: both bot tokens masked.
func Sanitize(cfg *Config) *Config {
	cp := *cfg
	cp.Bridges = append([]Bridge(nil), cfg.Bridges...)
	cp.TelegramBotToken = maskToken(cp.TelegramBotToken)
	cp.RevoltBotToken = maskToken(cp.RevoltBotToken)
	return &cp
}

// maskToken keeps the first and last four characters of long tokens.
// Unexpanded ${VAR} references are shown as is.
func maskToken(s string) string {
	switch {
	case s == "", strings.HasPrefix(s, "${"):
		return s
	case len(s) <= 8:
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
