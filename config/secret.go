package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultSecretTTL = 60 * time.Second

// SecretSource resolves a secret from a literal value or a file. File
// contents are cached for ttl so a rotated secret is picked up without a
// restart.
type SecretSource struct {
	value string
	file  string
	ttl   time.Duration

	mu       sync.Mutex
	cached   string
	loadedAt time.Time
	now      func() time.Time
}

// NewSecretSource creates a secret source. A non-empty file wins over value.
func NewSecretSource(value, file string, ttl time.Duration) *SecretSource {
	if ttl <= 0 {
		ttl = defaultSecretTTL
	}
	return &SecretSource{value: value, file: file, ttl: ttl, now: time.Now}
}

// StaticSecret wraps a known value.
func StaticSecret(value string) *SecretSource {
	return NewSecretSource(value, "", 0)
}

// Get returns the current secret.
func (s *SecretSource) Get() (string, error) {
	if s == nil {
		return "", fmt.Errorf("secret source not configured")
	}
	if s.file == "" {
		if s.value == "" {
			return "", fmt.Errorf("secret not set")
		}
		return s.value, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" && s.now().Sub(s.loadedAt) < s.ttl {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.file)
	if err != nil {
		return "", fmt.Errorf("error reading secret file %s: %w", s.file, err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", s.file)
	}

	s.cached = secret
	s.loadedAt = s.now()
	return secret, nil
}

// Configured reports whether a value or a file is set.
func (s *SecretSource) Configured() bool {
	return s != nil && (s.value != "" || s.file != "")
}
