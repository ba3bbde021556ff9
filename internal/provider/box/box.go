// Package box implements the provider contract against the Box Content
// API. Box keys files by opaque identifier, so upload is an explicit
// find-then-branch: update the existing file version or create a new
// file. Uploads go to a separate host (upload.box.com).
package box

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/plannerkit/planner-sync/internal/provider"
	"github.com/plannerkit/planner-sync/internal/restclient"
)

// Default API endpoints. Overridable for tests.
const (
	defaultAPIURL    = "https://api.box.com/2.0"
	defaultUploadURL = "https://upload.box.com/api/2.0"
)

// rootFolderID is Box's well-known identifier for the account root.
const rootFolderID = "0"

// listLimit is the page size for folder listings. The application folder
// holds two files, so a single page always suffices.
const listLimit = 1000

// Adapter talks to the Box Content API.
type Adapter struct {
	apiURL     string
	uploadURL  string
	client     *restclient.Client
	creds      *provider.Credentials
	folders    *provider.FolderCache
	folderName string
	logger     *slog.Logger
}

// New creates a Box adapter.
func New(client *restclient.Client, creds *provider.Credentials, folderName string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		apiURL:     defaultAPIURL,
		uploadURL:  defaultUploadURL,
		client:     client,
		creds:      creds,
		folders:    provider.NewFolderCache(creds, logger),
		folderName: folderName,
		logger:     logger,
	}
}

// SetBaseURLs overrides the API endpoints. Tests point these at httptest
// servers.
func (a *Adapter) SetBaseURLs(apiURL, uploadURL string) {
	a.apiURL = apiURL
	a.uploadURL = uploadURL
}

func (a *Adapter) ID() provider.ID { return provider.Box }

func (a *Adapter) DisplayName() string { return "Box" }

// itemEntry is the subset of a Box item the adapter reads.
type itemEntry struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

type itemCollection struct {
	Entries []itemEntry `json:"entries"`
}

type createFolderRequest struct {
	Name   string    `json:"name"`
	Parent folderRef `json:"parent"`
}

type folderRef struct {
	ID string `json:"id"`
}

// EnsureFolder resolves the application folder under the account root,
// creating it when missing.
func (a *Adapter) EnsureFolder(ctx context.Context) (provider.Folder, error) {
	return a.folders.Resolve(ctx, a.folderName, a.lookupFolder)
}

// lookupFolder searches the root listing for the application folder and
// creates it when absent. A 409 on create means another client created it
// between list and create; the re-list picks up the winner.
func (a *Adapter) lookupFolder(ctx context.Context) (provider.Folder, error) {
	f, found, err := a.findFolder(ctx)
	if err != nil {
		return provider.Folder{}, err
	}

	if found {
		return f, nil
	}

	a.logger.Info("creating application folder", slog.String("name", a.folderName))

	reqBody, err := json.Marshal(createFolderRequest{
		Name:   a.folderName,
		Parent: folderRef{ID: rootFolderID},
	})
	if err != nil {
		return provider.Folder{}, fmt.Errorf("box: encoding create folder request: %w", err)
	}

	data, err := a.client.DoJSON(ctx, http.MethodPost, a.apiURL+"/folders", reqBody)
	if err != nil {
		if errors.Is(err, restclient.ErrConflict) {
			f, found, findErr := a.findFolder(ctx)
			if findErr != nil {
				return provider.Folder{}, findErr
			}

			if found {
				return f, nil
			}
		}

		return provider.Folder{}, provider.WrapRemote(err, a.creds)
	}

	var created itemEntry
	if err := json.Unmarshal(data, &created); err != nil {
		return provider.Folder{}, fmt.Errorf("box: decoding create folder response: %w", err)
	}

	return provider.Folder{ID: created.ID, Name: created.Name}, nil
}

// findFolder lists the root and looks for the application folder by name.
func (a *Adapter) findFolder(ctx context.Context) (provider.Folder, bool, error) {
	url := fmt.Sprintf("%s/folders/%s/items?limit=%d&fields=id,type,name", a.apiURL, rootFolderID, listLimit)

	data, err := a.client.DoJSON(ctx, http.MethodGet, url, nil)
	if err != nil {
		return provider.Folder{}, false, provider.WrapRemote(err, a.creds)
	}

	var items itemCollection
	if err := json.Unmarshal(data, &items); err != nil {
		return provider.Folder{}, false, fmt.Errorf("box: decoding folder listing: %w", err)
	}

	for _, e := range items.Entries {
		if e.Type == "folder" && provider.SameName(e.Name, a.folderName) {
			return provider.Folder{ID: e.ID, Name: e.Name}, true, nil
		}
	}

	return provider.Folder{}, false, nil
}

// FindFile lists the application folder and matches the logical name
// exactly. Returns (nil, nil) when no match exists.
func (a *Adapter) FindFile(ctx context.Context, folder provider.Folder, name string) (*provider.File, error) {
	url := fmt.Sprintf("%s/folders/%s/items?limit=%d&fields=id,type,name", a.apiURL, folder.ID, listLimit)

	data, err := a.client.DoJSON(ctx, http.MethodGet, url, nil)
	if err != nil {
		if errors.Is(err, restclient.ErrNotFound) {
			// The cached folder no longer exists remotely.
			a.folders.Invalidate()
		}

		return nil, provider.WrapRemote(err, a.creds)
	}

	var items itemCollection
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("box: decoding file listing: %w", err)
	}

	want := provider.RemoteFileName(name)
	for _, e := range items.Entries {
		if e.Type == "file" && provider.SameName(e.Name, want) {
			return &provider.File{ID: e.ID, Name: e.Name, FolderID: folder.ID}, nil
		}
	}

	return nil, nil //nolint:nilnil // absence is a valid state, not an error
}

// Upload writes the payload, creating the file or uploading a new version
// of the existing one.
func (a *Adapter) Upload(ctx context.Context, folder provider.Folder, name string, payload []byte) error {
	existing, err := a.FindFile(ctx, folder, name)
	if err != nil {
		return err
	}

	if existing != nil {
		return a.uploadVersion(ctx, existing.ID, payload)
	}

	return a.uploadNew(ctx, folder, name, payload)
}

func (a *Adapter) uploadNew(ctx context.Context, folder provider.Folder, name string, payload []byte) error {
	a.logger.Info("uploading new file",
		slog.String("name", name),
		slog.Int("size", len(payload)),
	)

	attrs, err := json.Marshal(map[string]any{
		"name":   provider.RemoteFileName(name),
		"parent": folderRef{ID: folder.ID},
	})
	if err != nil {
		return fmt.Errorf("box: encoding upload attributes: %w", err)
	}

	body, contentType, err := multipartUpload(attrs, payload)
	if err != nil {
		return err
	}

	resp, err := a.client.Do(ctx, http.MethodPost, a.uploadURL+"/files/content", body, contentType)
	if err != nil {
		return provider.WrapRemote(err, a.creds)
	}
	defer resp.Body.Close()

	return drain(resp.Body)
}

func (a *Adapter) uploadVersion(ctx context.Context, fileID string, payload []byte) error {
	a.logger.Info("uploading new version",
		slog.String("file_id", fileID),
		slog.Int("size", len(payload)),
	)

	body, contentType, err := multipartUpload(nil, payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/files/%s/content", a.uploadURL, fileID)

	resp, err := a.client.Do(ctx, http.MethodPost, url, body, contentType)
	if err != nil {
		return provider.WrapRemote(err, a.creds)
	}
	defer resp.Body.Close()

	return drain(resp.Body)
}

// Download fetches the file content. Box answers with a redirect to a
// pre-signed URL, which the HTTP client follows. Absent file (or a 404
// on the content fetch itself) yields (nil, nil).
func (a *Adapter) Download(ctx context.Context, folder provider.Folder, name string) ([]byte, error) {
	f, err := a.FindFile(ctx, folder, name)
	if err != nil {
		return nil, err
	}

	if f == nil {
		return nil, nil
	}

	url := fmt.Sprintf("%s/files/%s/content", a.apiURL, f.ID)

	data, err := a.client.DoJSON(ctx, http.MethodGet, url, nil)
	if err != nil {
		if errors.Is(err, restclient.ErrNotFound) {
			return nil, nil
		}

		return nil, provider.WrapRemote(err, a.creds)
	}

	return data, nil
}

// multipartUpload builds a multipart/form-data body for the Box upload
// endpoints: optional attributes field plus the file part.
func multipartUpload(attributes, payload []byte) (body []byte, contentType string, err error) {
	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)

	if attributes != nil {
		if err := w.WriteField("attributes", string(attributes)); err != nil {
			return nil, "", fmt.Errorf("box: writing attributes field: %w", err)
		}
	}

	fw, err := w.CreateFormFile("file", "file")
	if err != nil {
		return nil, "", fmt.Errorf("box: creating file part: %w", err)
	}

	if _, err := fw.Write(payload); err != nil {
		return nil, "", fmt.Errorf("box: writing file part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("box: finalizing multipart body: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}

// drain discards a response body so the connection can be reused.
func drain(r io.Reader) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return fmt.Errorf("box: draining response body: %w", err)
	}

	return nil
}
