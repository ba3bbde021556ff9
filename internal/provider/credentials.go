package provider

import (
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/plannerkit/planner-sync/internal/tokenstore"
)

// CredentialStore is the persistence surface Credentials needs. Defined at
// the consumer per Go convention; satisfied by *tokenstore.Store.
type CredentialStore interface {
	Load(name string) (*oauth2.Token, error)
	Clear(name string) error
	Meta(name, key string) (string, error)
	SetMeta(name, key, value string) error
	DeleteMeta(name, key string) error
}

// Credentials binds one provider's credential record to the adapter that
// uses it. It implements restclient.TokenSource, so every outgoing request
// reads the current (possibly re-saved) token, and it owns the persisted
// folder-identifier metadata.
type Credentials struct {
	store  CredentialStore
	id     ID
	logger *slog.Logger
}

// NewCredentials creates the credential binding for one provider.
func NewCredentials(store CredentialStore, id ID, logger *slog.Logger) *Credentials {
	if logger == nil {
		logger = slog.Default()
	}

	return &Credentials{store: store, id: id, logger: logger}
}

// Token returns the current bearer token, or ErrNotAuthenticated when no
// valid credential is stored. Expired credentials read as absent (the
// store purges them on load).
func (c *Credentials) Token() (string, error) {
	tok, err := c.store.Load(string(c.id))
	if err != nil {
		return "", fmt.Errorf("loading credential for %s: %w", c.id, err)
	}

	if tok == nil {
		return "", fmt.Errorf("%w: %s", ErrNotAuthenticated, c.id)
	}

	return tok.AccessToken, nil
}

// FolderID returns the persisted remote folder identifier, if any.
func (c *Credentials) FolderID() (string, bool) {
	id, err := c.store.Meta(string(c.id), tokenstore.MetaFolderID)
	if err != nil {
		c.logger.Warn("reading cached folder id failed",
			slog.String("provider", string(c.id)),
			slog.String("error", err.Error()),
		)

		return "", false
	}

	return id, id != ""
}

// SetFolderID persists the resolved remote folder identifier.
func (c *Credentials) SetFolderID(folderID string) error {
	return c.store.SetMeta(string(c.id), tokenstore.MetaFolderID, folderID)
}

// ClearFolderID drops the persisted folder identifier. Used when a remote
// call referencing the cached folder comes back 404.
func (c *Credentials) ClearFolderID() error {
	return c.store.DeleteMeta(string(c.id), tokenstore.MetaFolderID)
}

// purge removes the stored credential after a 401. Best-effort: the 401 is
// the error the caller sees, not a purge failure.
func (c *Credentials) purge() {
	if err := c.store.Clear(string(c.id)); err != nil {
		c.logger.Warn("clearing credential after 401 failed",
			slog.String("provider", string(c.id)),
			slog.String("error", err.Error()),
		)

		return
	}

	c.logger.Info("credential cleared after 401", slog.String("provider", string(c.id)))
}
