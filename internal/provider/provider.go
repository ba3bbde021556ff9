// Package provider defines the uniform contract implemented by every
// cloud storage backend, the error kinds surfaced to the sync engine, and
// the shared plumbing (credentials, folder memoization, registry) the
// concrete dialects build on. Callers hold an Adapter, never a concrete
// variant.
package provider

import (
	"context"
	"fmt"
)

// ID identifies a storage provider.
type ID string

// Known provider identifiers.
const (
	Box         ID = "box"
	OneDrive    ID = "onedrive"
	GoogleDrive ID = "gdrive"
)

// IDs lists all known providers in display order.
var IDs = []ID{Box, OneDrive, GoogleDrive}

// ParseID validates a provider name from user input.
func ParseID(s string) (ID, error) {
	for _, id := range IDs {
		if string(id) == s {
			return id, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidProvider, s)
}

// Logical names of the two files kept in the application folder. The
// provider-side file name is an adapter implementation detail; callers
// only ever use these.
const (
	DocumentName = "planner-data"
	SettingsName = "planner-settings"
)

// Folder is a resolved remote application folder.
type Folder struct {
	ID   string
	Name string
}

// File is a remote file resolved within the application folder.
type File struct {
	ID       string
	Name     string
	FolderID string
}

// Adapter is the uniform contract over one provider's REST dialect.
//
// FindFile and Download return (nil, nil) when the file does not exist:
// absence is a valid state, distinct from a fetch error, and every
// adapter normalizes the provider's 404 to it. A 401 from any call clears
// the stored credential and surfaces ErrAuthExpired.
type Adapter interface {
	ID() ID
	DisplayName() string

	// EnsureFolder idempotently resolves the dedicated application
	// folder, creating it when missing. Concurrent callers on the same
	// adapter instance trigger at most one create call per session.
	EnsureFolder(ctx context.Context) (Folder, error)

	// FindFile locates a file by logical name within the folder.
	FindFile(ctx context.Context, folder Folder, name string) (*File, error)

	// Upload writes payload to the named file, overwriting in place when
	// the file already exists.
	Upload(ctx context.Context, folder Folder, name string, payload []byte) error

	// Download fetches the named file's content.
	Download(ctx context.Context, folder Folder, name string) ([]byte, error)
}
