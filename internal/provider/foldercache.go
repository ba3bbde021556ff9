package provider

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// FolderCache memoizes the resolved application folder for one adapter
// instance. Resolution order: in-memory cache, persisted identifier,
// remote lookup (which may create the folder). Concurrent callers are
// collapsed through singleflight so at most one create call can happen
// per session.
type FolderCache struct {
	creds  *Credentials
	logger *slog.Logger

	mu     sync.Mutex
	folder *Folder

	group singleflight.Group
}

// NewFolderCache creates a folder cache bound to one provider's credentials.
func NewFolderCache(creds *Credentials, logger *slog.Logger) *FolderCache {
	if logger == nil {
		logger = slog.Default()
	}

	return &FolderCache{creds: creds, logger: logger}
}

// Resolve returns the application folder, consulting caches before
// calling lookup. name is the configured folder display name; lookup
// performs the provider-specific find-or-create.
func (fc *FolderCache) Resolve(
	ctx context.Context, name string, lookup func(context.Context) (Folder, error),
) (Folder, error) {
	fc.mu.Lock()
	if fc.folder != nil {
		f := *fc.folder
		fc.mu.Unlock()

		return f, nil
	}
	fc.mu.Unlock()

	// Collapse concurrent resolutions: later callers suspend until the
	// first one finishes, so only one create call can be issued.
	v, err, _ := fc.group.Do("folder", func() (any, error) {
		if id, ok := fc.creds.FolderID(); ok {
			fc.logger.Debug("using persisted folder id",
				slog.String("provider", string(fc.creds.id)),
				slog.String("folder_id", id),
			)

			return Folder{ID: id, Name: name}, nil
		}

		f, lookupErr := lookup(ctx)
		if lookupErr != nil {
			return Folder{}, lookupErr
		}

		if saveErr := fc.creds.SetFolderID(f.ID); saveErr != nil {
			// The folder exists remotely; failing to cache its id only
			// costs a re-lookup next session.
			fc.logger.Warn("persisting folder id failed",
				slog.String("provider", string(fc.creds.id)),
				slog.String("error", saveErr.Error()),
			)
		}

		return f, nil
	})
	if err != nil {
		return Folder{}, err
	}

	f, ok := v.(Folder)
	if !ok {
		return Folder{}, ErrUnavailable
	}

	fc.mu.Lock()
	fc.folder = &f
	fc.mu.Unlock()

	return f, nil
}

// Invalidate drops both the session cache and the persisted identifier.
// Called when a folder-scoped remote call returns 404 or a permission
// error; the next EnsureFolder re-resolves from scratch.
func (fc *FolderCache) Invalidate() {
	fc.mu.Lock()
	fc.folder = nil
	fc.mu.Unlock()

	if err := fc.creds.ClearFolderID(); err != nil {
		fc.logger.Warn("clearing persisted folder id failed",
			slog.String("provider", string(fc.creds.id)),
			slog.String("error", err.Error()),
		)
	}
}
