/*-------------------------------------------------------------------------
 *
 * Postgres Schema MCP Server
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"postgres-schema-mcp/internal/logging"
)

// ErrTokenExpired is returned by ValidateToken for a known but expired token
var ErrTokenExpired = errors.New("token has expired")

// Token represents an API token with metadata. Only the hash is stored.
type Token struct {
	Hash       string     `yaml:"hash"`       // SHA256 hash of the token
	ExpiresAt  *time.Time `yaml:"expires_at"` // Expiry date (null for indefinite)
	Annotation string     `yaml:"annotation"` // User note/description
	CreatedAt  time.Time  `yaml:"created_at"` // When the token was created
}

// TokenStore manages API tokens
type TokenStore struct {
	mu      sync.RWMutex      // Protects concurrent access to Tokens
	Tokens  map[string]*Token `yaml:"tokens"` // key is a unique identifier
	path    string            // File path for auto-reloading
	watcher *FileWatcher      // File watcher for auto-reloading
}

// TokenInfo is a display-friendly representation of a token
type TokenInfo struct {
	ID         string
	HashPrefix string
	ExpiresAt  *time.Time
	Annotation string
	CreatedAt  time.Time
	Expired    bool
}

// NewTokenStore creates a new empty token store
func NewTokenStore() *TokenStore {
	return &TokenStore{
		Tokens: make(map[string]*Token),
	}
}

// GenerateToken creates a new random API token
func GenerateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	// URL-safe base64 so the token can be pasted into headers and shells
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// HashToken creates a SHA256 hash of the token
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// LoadTokenStore loads tokens from a YAML file
func LoadTokenStore(path string) (*TokenStore, error) {
	tokens, err := readTokenFile(path)
	if err != nil {
		return nil, err
	}
	return &TokenStore{Tokens: tokens, path: path}, nil
}

func readTokenFile(path string) (map[string]*Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Tokens map[string]*Token `yaml:"tokens"`
	}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if parsed.Tokens == nil {
		parsed.Tokens = make(map[string]*Token)
	}
	for id, token := range parsed.Tokens {
		if token == nil || token.Hash == "" {
			return nil, fmt.Errorf("token %q has no hash", id)
		}
	}
	return parsed.Tokens, nil
}

// Reload reloads the token store from disk
func (s *TokenStore) Reload() error {
	if s.path == "" {
		return fmt.Errorf("no path set for token store")
	}

	tokens, err := readTokenFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to reload token file: %w", err)
	}

	s.mu.Lock()
	s.Tokens = tokens
	s.mu.Unlock()

	logging.Info("token_store_reloaded", "path", s.path, "tokens", len(tokens))
	return nil
}

// SaveTokenStore saves tokens to a YAML file
func SaveTokenStore(path string, store *TokenStore) error {
	store.mu.RLock()
	data, err := yaml.Marshal(store)
	store.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write with restrictive permissions (owner read/write only)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

// AddToken adds a new token hash to the store
func (s *TokenStore) AddToken(tokenID, hash, annotation string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Tokens == nil {
		s.Tokens = make(map[string]*Token)
	}

	if _, exists := s.Tokens[tokenID]; exists {
		return fmt.Errorf("token with ID '%s' already exists", tokenID)
	}

	s.Tokens[tokenID] = &Token{
		Hash:       hash,
		ExpiresAt:  expiresAt,
		Annotation: annotation,
		CreatedAt:  time.Now(),
	}

	return nil
}

// RemoveToken removes a token from the store by ID or by a hash prefix of
// at least 8 characters
func (s *TokenStore) RemoveToken(identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.Tokens[identifier]; exists {
		delete(s.Tokens, identifier)
		return true, nil
	}

	if len(identifier) < 8 {
		return false, nil
	}

	var matches []string
	for id, token := range s.Tokens {
		if strings.HasPrefix(token.Hash, identifier) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return false, nil
	case 1:
		delete(s.Tokens, matches[0])
		return true, nil
	default:
		return false, fmt.Errorf("hash prefix '%s' matches %d tokens", identifier, len(matches))
	}
}

// ValidateToken checks if a token is valid (exists and not expired)
func (s *TokenStore) ValidateToken(token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash := []byte(HashToken(token))
	now := time.Now()

	for _, storedToken := range s.Tokens {
		if subtle.ConstantTimeCompare([]byte(storedToken.Hash), hash) == 1 {
			if storedToken.ExpiresAt != nil && storedToken.ExpiresAt.Before(now) {
				return false, ErrTokenExpired
			}
			return true, nil
		}
	}

	return false, nil
}

// ListTokens returns all tokens with their metadata, oldest first
func (s *TokenStore) ListTokens() []*TokenInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*TokenInfo, 0, len(s.Tokens))
	now := time.Now()

	for id, token := range s.Tokens {
		prefix := token.Hash
		if len(prefix) > 12 {
			prefix = prefix[:12]
		}
		result = append(result, &TokenInfo{
			ID:         id,
			HashPrefix: prefix,
			ExpiresAt:  token.ExpiresAt,
			Annotation: token.Annotation,
			CreatedAt:  token.CreatedAt,
			Expired:    token.ExpiresAt != nil && token.ExpiresAt.Before(now),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// CleanupExpiredTokens removes expired tokens and returns how many went
func (s *TokenStore) CleanupExpiredTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, token := range s.Tokens {
		if token.ExpiresAt != nil && token.ExpiresAt.Before(now) {
			delete(s.Tokens, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of stored tokens
func (s *TokenStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Tokens)
}

// GetDefaultTokenPath returns the default token file path
// Searches /etc/postgres-schema-mcp/ first, then binary directory
func GetDefaultTokenPath(binaryPath string) string {
	systemPath := "/etc/postgres-schema-mcp/postgres-schema-mcp-tokens.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}

	dir := filepath.Dir(binaryPath)
	return filepath.Join(dir, "postgres-schema-mcp-tokens.yaml")
}

// StartWatching starts watching the token file for changes
func (s *TokenStore) StartWatching() error {
	if s.path == "" {
		return fmt.Errorf("no path set for token store")
	}

	watcher, err := NewFileWatcher(s.path, s.Reload)
	if err != nil {
		return err
	}

	s.watcher = watcher
	s.watcher.Start()
	return nil
}

// StopWatching stops watching the token file for changes
func (s *TokenStore) StopWatching() {
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
}
