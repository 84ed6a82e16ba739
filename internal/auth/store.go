package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// tokenIDLength is the length of generated token record ids. Ids are random
// hex, so 8 characters leave collisions to a re-roll loop.
const tokenIDLength = 8

// TokenRecord is one stored credential. Records are created by a completed
// device flow and destroyed by explicit deletion; they are never mutated in
// place apart from being marked active or inactive.
type TokenRecord struct {
	ID          string `json:"id"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	CreatedAt   int64  `json:"created_at"`
	ExpiresAt   int64  `json:"expires_at,omitempty"` // unix seconds; 0 means no expiry
	Name        string `json:"name,omitempty"`       // optional human label, e.g. "work account"
}

// Expired reports whether the record has an expiry in the past.
func (r TokenRecord) Expired() bool {
	return r.ExpiresAt != 0 && time.Now().Unix() >= r.ExpiresAt
}

// storeDocument is the on-disk shape of the credential store.
type storeDocument struct {
	Tokens        map[string]TokenRecord `json:"tokens"`
	ActiveTokenID string                 `json:"active_token_id,omitempty"`
}

// TokenStore is durable storage for zero or more credentials and which one
// is in use. Every mutation rewrites the whole JSON document atomically
// (write to a temp file, rename over the target), so a crash mid-write
// cannot corrupt the store.
//
// SECURITY: the document holds bearer tokens. The file is written with 0600
// permissions and its directory with 0700, and token values are never
// logged — only record ids and masked prefixes.
type TokenStore struct {
	mu     sync.Mutex
	path   string
	tokens map[string]TokenRecord
	active string
	logger *zap.Logger
}

// NewTokenStore creates a TokenStore backed by the JSON document at path.
// A missing file yields an empty store. A corrupt file is logged and
// ignored, also yielding an empty store: losing stored credentials forces a
// re-login, which beats refusing to start. A nil logger disables logging.
func NewTokenStore(path string, logger *zap.Logger) *TokenStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TokenStore{
		path:   path,
		tokens: make(map[string]TokenRecord),
		logger: logger,
	}
	s.load()
	return s
}

func (s *TokenStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("could not read token store, starting empty",
				zap.String("path", s.path), zap.Error(err))
		}
		return
	}
	var doc storeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("token store is corrupt, starting empty",
			zap.String("path", s.path), zap.Error(err))
		return
	}
	if doc.Tokens != nil {
		s.tokens = doc.Tokens
	}
	if _, ok := s.tokens[doc.ActiveTokenID]; ok {
		s.active = doc.ActiveTokenID
	}
}

// Save stores the credential from resp under a fresh id, makes it the
// active record, and flushes the store to disk before returning. name is an
// optional human label. Fails with ErrNoAccessToken when resp carries no
// access token, leaving the store untouched.
func (s *TokenStore) Save(resp TokenResponse, name string) (string, error) {
	if resp.AccessToken == "" {
		return "", ErrNoAccessToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	createdAt := resp.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	record := TokenRecord{
		ID:          id,
		AccessToken: resp.AccessToken,
		TokenType:   tokenType,
		Scope:       resp.Scope,
		CreatedAt:   createdAt,
		Name:        name,
	}
	if resp.ExpiresIn > 0 {
		record.ExpiresAt = createdAt + int64(resp.ExpiresIn)
	}

	prevActive := s.active
	s.tokens[id] = record
	s.active = id

	if err := s.persist(); err != nil {
		delete(s.tokens, id)
		s.active = prevActive
		return "", fmt.Errorf("persisting token store: %w", err)
	}
	s.logger.Info("credential stored", zap.String("id", id), zap.String("token", Mask(record.AccessToken)))
	return id, nil
}

// ActiveToken returns the bearer secret of the active record. The second
// return is false when no record is active or the active record has
// expired.
func (s *TokenStore) ActiveToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[s.active]
	if !ok || record.Expired() {
		return "", false
	}
	return record.AccessToken, true
}

// Token returns the bearer secret of the record with the given id. An empty
// id falls back to the active record (including its expiry check); a
// specific id is returned without an expiry check — Validate is the
// explicit way to ask about expiry.
func (s *TokenStore) Token(id string) (string, bool) {
	if id == "" {
		return s.ActiveToken()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[id]
	if !ok {
		return "", false
	}
	return record.AccessToken, true
}

// Validate reports whether the record exists and has not expired.
func (s *TokenStore) Validate(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[id]
	return ok && !record.Expired()
}

// List returns all stored records ordered by creation time, oldest first.
// Records include the raw secrets; display code is responsible for masking.
func (s *TokenStore) List() []TokenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]TokenRecord, 0, len(s.tokens))
	for _, record := range s.tokens {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].ID < records[j].ID
	})
	return records
}

// ActiveID returns the id of the active record, or empty when none is
// active.
func (s *TokenStore) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Delete removes the record with the given id and returns whether it
// existed. Deleting the active record clears the active pointer.
func (s *TokenStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[id]; !ok {
		return false
	}
	delete(s.tokens, id)
	if s.active == id {
		s.active = ""
	}
	if err := s.persist(); err != nil {
		s.logger.Warn("could not persist token store after delete",
			zap.String("id", id), zap.Error(err))
	}
	return true
}

// SetActive marks the record with the given id as the active credential.
// Returns false without changing state when the id is unknown.
func (s *TokenStore) SetActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[id]; !ok {
		return false
	}
	s.active = id
	if err := s.persist(); err != nil {
		s.logger.Warn("could not persist token store after activation",
			zap.String("id", id), zap.Error(err))
	}
	return true
}

// newID generates a record id that is not already in use. Caller holds mu.
func (s *TokenStore) newID() string {
	for {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:tokenIDLength]
		if _, taken := s.tokens[id]; !taken {
			return id
		}
	}
}

// persist writes the whole document to a temp file in the target directory
// and renames it over the store path. Caller holds mu.
func (s *TokenStore) persist() error {
	doc := storeDocument{
		Tokens:        s.tokens,
		ActiveTokenID: s.active,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("restricting temp file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing token store: %w", err)
	}
	return nil
}

// Mask returns a display-safe form of a secret: the first four characters
// followed by an ellipsis. Short secrets are masked entirely.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "..."
}
