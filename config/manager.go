package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Manager collects raw configuration values from files and the
// environment before they are typed into a Config.
type Manager struct {
	values map[string]any
	source map[string]string
	mu     sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		values: make(map[string]any),
		source: make(map[string]string),
	}
}

// Set sets a configuration value, remembering where it came from.
func (m *Manager) Set(key string, value any, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	m.source[key] = source
}

// Get gets a configuration value
func (m *Manager) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.values[key]
	return value, exists
}

// Source names where key was last set from.
func (m *Manager) Source(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.source[key]
}

// GetString gets a string configuration value
func (m *Manager) GetString(key string) (string, bool) {
	value, exists := m.Get(key)
	if !exists {
		return "", false
	}
	if str, ok := value.(string); ok {
		return str, true
	}
	return fmt.Sprint(value), true
}

// GetInt gets an integer configuration value
func (m *Manager) GetInt(key string) (int, bool, error) {
	value, exists := m.Get(key)
	if !exists {
		return 0, false, nil
	}
	switch v := value.(type) {
	case int:
		return v, true, nil
	case float64:
		if v == float64(int(v)) {
			return int(v), true, nil
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i, true, nil
		}
	}
	return 0, false, m.badValue(key, value, "an integer")
}

// GetDuration gets a duration configuration value. Strings use
// time.ParseDuration syntax; bare numbers are seconds.
func (m *Manager) GetDuration(key string) (time.Duration, bool, error) {
	value, exists := m.Get(key)
	if !exists {
		return 0, false, nil
	}
	switch v := value.(type) {
	case time.Duration:
		return v, true, nil
	case float64:
		return time.Duration(v * float64(time.Second)), true, nil
	case string:
		s := strings.TrimSpace(v)
		if d, err := time.ParseDuration(s); err == nil {
			return d, true, nil
		}
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Second, true, nil
		}
	}
	return 0, false, m.badValue(key, value, "a duration")
}

func (m *Manager) badValue(key string, value any, want string) error {
	return fmt.Errorf("config: %s=%v from %s is not %s", key, value, m.Source(key), want)
}

// LoadFromEnv loads the named keys from PREFIX_KEY environment variables.
func (m *Manager) LoadFromEnv(prefix string, keys []string, lookup func(string) (string, bool)) {
	for _, key := range keys {
		name := strings.ToUpper(key)
		if prefix != "" {
			name = prefix + "_" + name
		}
		if value, ok := lookup(name); ok {
			m.Set(key, value, "env "+name)
		}
	}
}

// LoadFromJSON loads configuration from JSON file
func (m *Manager) LoadFromJSON(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse JSON config: %w", err)
	}

	m.loadFromMap("", values, filename)
	return nil
}

// loadFromMap recursively loads configuration from a map
func (m *Manager) loadFromMap(prefix string, values map[string]any, source string) {
	for key, value := range values {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok {
			m.loadFromMap(fullKey, nested, source)
		} else {
			m.Set(fullKey, value, source)
		}
	}
}

// GetAll returns all configuration values
func (m *Manager) GetAll() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]any, len(m.values))
	for k, v := range m.values {
		result[k] = v
	}
	return result
}
