// Package credentials resolves and persists the Integritas API key.
package credentials

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

const (
	KeyringService = "integritas-mcp"
	KeyringAccount = "integritas_api_key"
	EnvAPIKey      = "INTEGRITAS_API_KEY"
	MinKeyLength   = 8
	maskGlyph      = "••••••"
)

// ErrKeyTooShort is returned by Set for keys under MinKeyLength characters.
var ErrKeyTooShort = errors.New("api key must be at least 8 characters")

// Keyring is the subset of the OS keyring the store needs.
type Keyring interface {
	Get(service, user string) (string, error)
	Set(service, user, password string) error
	Delete(service, user string) error
}

type osKeyring struct{}

func (osKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (osKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}
func (osKeyring) Delete(service, user string) error { return keyring.Delete(service, user) }

// OSKeyring returns the platform keyring.
func OSKeyring() Keyring { return osKeyring{} }

// Source names where a resolved key came from.
type Source string

const (
	SourceNone    Source = ""
	SourceMemory  Source = "memory"
	SourceKeyring Source = "keyring"
	SourceConfig  Source = "config"
	SourceEnv     Source = "env"
)

// Store holds the session key and falls back to the keyring, configuration,
// and environment, in that order.
type Store struct {
	mu        sync.RWMutex
	memory    string
	configKey string
	ring      Keyring
	logger    *zap.Logger
}

// NewStore constructs a Store. A nil ring disables keyring persistence.
func NewStore(configKey string, ring Keyring, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{configKey: strings.TrimSpace(configKey), ring: ring, logger: logger}
}

// Resolve returns the active key or an empty string.
func (s *Store) Resolve() string {
	key, _ := s.Lookup()
	return key
}

// Lookup returns the active key and its source.
func (s *Store) Lookup() (string, Source) {
	s.mu.RLock()
	memory := s.memory
	s.mu.RUnlock()
	if memory != "" {
		return memory, SourceMemory
	}
	if s.ring != nil {
		key, err := s.ring.Get(KeyringService, KeyringAccount)
		if err == nil && key != "" {
			return key, SourceKeyring
		}
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			s.logger.Debug("keyring lookup failed", zap.Error(err))
		}
	}
	if s.configKey != "" {
		return s.configKey, SourceConfig
	}
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		return key, SourceEnv
	}
	return "", SourceNone
}

// Set stores key in memory and, best effort, in the keyring. It reports
// whether the keyring write succeeded.
func (s *Store) Set(key string) (bool, error) {
	key = strings.TrimSpace(key)
	if len([]rune(key)) < MinKeyLength {
		return false, ErrKeyTooShort
	}
	s.mu.Lock()
	s.memory = key
	s.mu.Unlock()

	if s.ring == nil {
		return false, nil
	}
	if err := s.ring.Set(KeyringService, KeyringAccount, key); err != nil {
		s.logger.Warn("keyring save failed; key kept for this session only", zap.Error(err))
		return false, nil
	}
	return true, nil
}

// Clear wipes the session key and the keyring entry.
func (s *Store) Clear() {
	s.mu.Lock()
	s.memory = ""
	s.mu.Unlock()
	if s.ring == nil {
		return
	}
	if err := s.ring.Delete(KeyringService, KeyringAccount); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		s.logger.Debug("keyring delete failed", zap.Error(err))
	}
}

// Mask hides all but the last four characters of value.
func Mask(value string) string {
	const keep = 4
	if value == "" {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= keep {
		return value
	}
	return strings.Repeat(maskGlyph, len(runes)-keep) + string(runes[len(runes)-keep:])
}
