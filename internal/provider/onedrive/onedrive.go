// Package onedrive implements the provider contract against the
// Microsoft Graph API. The application folder is the Graph "approot"
// special folder, and files are addressed by path beneath it, so upload
// is a single PUT that upserts, with no find-then-branch like Box and
// Google Drive.
package onedrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/plannerkit/planner-sync/internal/provider"
	"github.com/plannerkit/planner-sync/internal/restclient"
)

// defaultBaseURL is the Graph API endpoint. Overridable for tests.
const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Adapter talks to the Microsoft Graph API.
type Adapter struct {
	baseURL    string
	client     *restclient.Client
	creds      *provider.Credentials
	folders    *provider.FolderCache
	folderName string
	logger     *slog.Logger
}

// New creates a OneDrive adapter. folderName is kept for display only;
// the approot's actual name is assigned by OneDrive from the app
// registration.
func New(client *restclient.Client, creds *provider.Credentials, folderName string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		baseURL:    defaultBaseURL,
		client:     client,
		creds:      creds,
		folders:    provider.NewFolderCache(creds, logger),
		folderName: folderName,
		logger:     logger,
	}
}

// SetBaseURL overrides the Graph endpoint. Tests point this at an
// httptest server.
func (a *Adapter) SetBaseURL(baseURL string) {
	a.baseURL = baseURL
}

func (a *Adapter) ID() provider.ID { return provider.OneDrive }

func (a *Adapter) DisplayName() string { return "OneDrive" }

// driveItem is the subset of a Graph driveItem the adapter reads.
type driveItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EnsureFolder resolves the approot special folder. Graph creates it on
// first access, so there is never an explicit create call.
func (a *Adapter) EnsureFolder(ctx context.Context) (provider.Folder, error) {
	return a.folders.Resolve(ctx, a.folderName, func(ctx context.Context) (provider.Folder, error) {
		data, err := a.client.DoJSON(ctx, http.MethodGet, a.baseURL+"/me/drive/special/approot", nil)
		if err != nil {
			return provider.Folder{}, provider.WrapRemote(err, a.creds)
		}

		var item driveItem
		if err := json.Unmarshal(data, &item); err != nil {
			return provider.Folder{}, fmt.Errorf("onedrive: decoding approot response: %w", err)
		}

		a.logger.Debug("resolved approot",
			slog.String("folder_id", item.ID),
			slog.String("name", item.Name),
		)

		return provider.Folder{ID: item.ID, Name: item.Name}, nil
	})
}

// itemURL builds the path-addressed URL for a logical file under the
// approot. suffix is ":/content" for content operations, "" for metadata.
func (a *Adapter) itemURL(name, suffix string) string {
	return fmt.Sprintf("%s/me/drive/special/approot:/%s%s",
		a.baseURL, url.PathEscape(provider.RemoteFileName(name)), suffix)
}

// FindFile fetches the item metadata by path. Returns (nil, nil) on 404.
func (a *Adapter) FindFile(ctx context.Context, folder provider.Folder, name string) (*provider.File, error) {
	data, err := a.client.DoJSON(ctx, http.MethodGet, a.itemURL(name, ""), nil)
	if err != nil {
		if errors.Is(err, restclient.ErrNotFound) {
			return nil, nil
		}

		return nil, provider.WrapRemote(err, a.creds)
	}

	var item driveItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("onedrive: decoding item response: %w", err)
	}

	return &provider.File{ID: item.ID, Name: item.Name, FolderID: folder.ID}, nil
}

// Upload PUTs the payload by path. Graph upserts: the file is created if
// absent and overwritten if present, in one atomic call.
func (a *Adapter) Upload(ctx context.Context, folder provider.Folder, name string, payload []byte) error {
	a.logger.Info("uploading file",
		slog.String("name", name),
		slog.Int("size", len(payload)),
	)

	resp, err := a.client.Do(ctx, http.MethodPut, a.itemURL(name, ":/content"), payload, "application/octet-stream")
	if err != nil {
		if errors.Is(err, restclient.ErrNotFound) {
			// The approot itself is gone; force re-resolution next time.
			a.folders.Invalidate()
		}

		return provider.WrapRemote(err, a.creds)
	}

	resp.Body.Close()

	return nil
}

// Download GETs the content by path. Graph redirects to a
// pre-authenticated URL, which the HTTP client follows. 404 yields
// (nil, nil).
func (a *Adapter) Download(ctx context.Context, folder provider.Folder, name string) ([]byte, error) {
	data, err := a.client.DoJSON(ctx, http.MethodGet, a.itemURL(name, ":/content"), nil)
	if err != nil {
		if errors.Is(err, restclient.ErrNotFound) {
			return nil, nil
		}

		return nil, provider.WrapRemote(err, a.creds)
	}

	return data, nil
}
