// Package tokenstore persists one bearer credential per storage provider.
// Each credential is a JSON file holding an OAuth2 token alongside a small
// metadata map (cached remote folder identifier). This is a leaf package:
// it performs no network calls and knows nothing about providers beyond
// their names.
package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts credential files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credentials directory.
const DirPerms = 0o700

// MetaFolderID is the metadata key carrying the cached remote folder
// identifier. Stored next to the credential so Clear purges both together.
const MetaFolderID = "folder_id"

// File is the on-disk format for credential files.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Store reads and writes per-provider credential files under a single
// directory. The zero value is not usable; construct with NewStore.
type Store struct {
	dir    string
	logger *slog.Logger

	// nowFunc is injectable for deterministic expiry tests.
	nowFunc func() time.Time
}

// NewStore creates a credential store rooted at dir. The directory is
// created lazily on first Save.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{dir: dir, logger: logger, nowFunc: time.Now}
}

// path returns the credential file path for a provider name.
func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Load reads the persisted credential for a provider. Returns (nil, nil)
// when no credential exists. A credential whose expiry has passed is
// treated as absent and purged from disk as a side effect.
func (s *Store) Load(name string) (*oauth2.Token, error) {
	tf, err := s.read(name)
	if err != nil || tf == nil {
		return nil, err
	}

	tok := tf.Token
	if tok == nil {
		return nil, fmt.Errorf("tokenstore: %s missing token field (reconnect required)", s.path(name))
	}

	if !tok.Expiry.IsZero() && tok.Expiry.Before(s.nowFunc()) {
		s.logger.Info("credential expired, purging",
			slog.String("provider", name),
			slog.Time("expiry", tok.Expiry),
		)

		if clearErr := s.Clear(name); clearErr != nil {
			return nil, clearErr
		}

		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	return tok, nil
}

// Save persists a credential for a provider. When expiresIn is positive,
// an absolute expiry instant is stored. Existing metadata (the cached
// folder identifier) is preserved across re-authentication; the remote
// folder does not move when the token changes.
func (s *Store) Save(name, accessToken string, expiresIn time.Duration) error {
	tok := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}

	if expiresIn > 0 {
		tok.Expiry = s.nowFunc().Add(expiresIn)
	}

	existing, err := s.read(name)
	if err != nil {
		return err
	}

	var meta map[string]string
	if existing != nil {
		meta = existing.Meta
	}

	return s.write(name, &File{Token: tok, Meta: meta})
}

// Clear purges the credential and all associated metadata (including the
// cached folder identifier) for a provider. Clearing an absent credential
// is not an error.
func (s *Store) Clear(name string) error {
	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("tokenstore: removing %s: %w", s.path(name), err)
	}

	s.logger.Info("cleared credential", slog.String("provider", name))

	return nil
}

// Meta returns a metadata value for a provider. Returns "" (not an error)
// when the credential file or the key is absent.
func (s *Store) Meta(name, key string) (string, error) {
	tf, err := s.read(name)
	if err != nil || tf == nil {
		return "", err
	}

	return tf.Meta[key], nil
}

// SetMeta stores a metadata value alongside the credential. Requires an
// existing credential file; metadata never outlives its credential.
func (s *Store) SetMeta(name, key, value string) error {
	tf, err := s.read(name)
	if err != nil {
		return err
	}

	if tf == nil {
		return fmt.Errorf("tokenstore: no credential for %s", name)
	}

	if tf.Meta == nil {
		tf.Meta = make(map[string]string, 1)
	}

	tf.Meta[key] = value

	return s.write(name, tf)
}

// DeleteMeta removes a metadata key. Absent file or key is not an error.
func (s *Store) DeleteMeta(name, key string) error {
	tf, err := s.read(name)
	if err != nil || tf == nil {
		return err
	}

	if _, ok := tf.Meta[key]; !ok {
		return nil
	}

	delete(tf.Meta, key)

	return s.write(name, tf)
}

// read loads the raw credential file. Returns (nil, nil) when absent.
func (s *Store) read(name string) (*File, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenstore: reading %s: %w", s.path(name), err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenstore: decoding %s: %w", s.path(name), err)
	}

	return &tf, nil
}

// write saves a credential file atomically (write-to-temp + rename) with
// 0600 permissions. Never logs token values.
func (s *Store) write(name string, tf *File) error {
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenstore: encoding: %w", err)
	}

	if mkErr := os.MkdirAll(s.dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenstore: creating directory %s: %w", s.dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(s.dir, ".cred-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenstore: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenstore: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenstore: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenstore: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenstore: closing: %w", err)
	}

	if err := os.Rename(tmpPath, s.path(name)); err != nil {
		return fmt.Errorf("tokenstore: renaming: %w", err)
	}

	success = true

	return nil
}
