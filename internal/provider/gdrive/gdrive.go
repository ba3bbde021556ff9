// Package gdrive implements the provider contract against the Google
// Drive v3 REST API. Drive keys files by opaque identifier and finds them
// with a query language, so upload is an explicit find-then-branch:
// media PATCH for an existing file, multipart/related POST for a new one.
package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/plannerkit/planner-sync/internal/provider"
	"github.com/plannerkit/planner-sync/internal/restclient"
)

// Default API endpoints. Overridable for tests.
const (
	defaultAPIURL    = "https://www.googleapis.com/drive/v3"
	defaultUploadURL = "https://www.googleapis.com/upload/drive/v3"
)

// folderMimeType is Drive's marker mime type for folders.
const folderMimeType = "application/vnd.google-apps.folder"

// Adapter talks to the Google Drive v3 API.
type Adapter struct {
	apiURL     string
	uploadURL  string
	client     *restclient.Client
	creds      *provider.Credentials
	folders    *provider.FolderCache
	folderName string
	logger     *slog.Logger
}

// New creates a Google Drive adapter.
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

func (a *Adapter) ID() provider.ID { return provider.GoogleDrive }

func (a *Adapter) DisplayName() string { return "Google Drive" }

// driveFile is the subset of a Drive file resource the adapter reads.
type driveFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type fileList struct {
	Files []driveFile `json:"files"`
}

// quoteQueryValue escapes a string literal for the Drive query language.
func quoteQueryValue(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// query runs a files.list call with the given q expression.
func (a *Adapter) query(ctx context.Context, q string) ([]driveFile, error) {
	u := fmt.Sprintf("%s/files?q=%s&fields=files(id,name)&spaces=drive", a.apiURL, url.QueryEscape(q))

	data, err := a.client.DoJSON(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var list fileList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("gdrive: decoding file list: %w", err)
	}

	return list.Files, nil
}

// EnsureFolder resolves the application folder, creating it when missing.
func (a *Adapter) EnsureFolder(ctx context.Context) (provider.Folder, error) {
	return a.folders.Resolve(ctx, a.folderName, a.lookupFolder)
}

func (a *Adapter) lookupFolder(ctx context.Context) (provider.Folder, error) {
	q := fmt.Sprintf("name=%s and mimeType=%s and trashed=false",
		quoteQueryValue(a.folderName), quoteQueryValue(folderMimeType))

	files, err := a.query(ctx, q)
	if err != nil {
		return provider.Folder{}, provider.WrapRemote(err, a.creds)
	}

	for _, f := range files {
		if provider.SameName(f.Name, a.folderName) {
			return provider.Folder{ID: f.ID, Name: f.Name}, nil
		}
	}

	a.logger.Info("creating application folder", slog.String("name", a.folderName))

	reqBody, err := json.Marshal(map[string]string{
		"name":     a.folderName,
		"mimeType": folderMimeType,
	})
	if err != nil {
		return provider.Folder{}, fmt.Errorf("gdrive: encoding create folder request: %w", err)
	}

	data, err := a.client.DoJSON(ctx, http.MethodPost, a.apiURL+"/files", reqBody)
	if err != nil {
		return provider.Folder{}, provider.WrapRemote(err, a.creds)
	}

	var created driveFile
	if err := json.Unmarshal(data, &created); err != nil {
		return provider.Folder{}, fmt.Errorf("gdrive: decoding create folder response: %w", err)
	}

	return provider.Folder{ID: created.ID, Name: a.folderName}, nil
}

// FindFile queries for the logical file inside the folder. Returns
// (nil, nil) when no match exists.
func (a *Adapter) FindFile(ctx context.Context, folder provider.Folder, name string) (*provider.File, error) {
	want := provider.RemoteFileName(name)
	q := fmt.Sprintf("name=%s and %s in parents and trashed=false",
		quoteQueryValue(want), quoteQueryValue(folder.ID))

	files, err := a.query(ctx, q)
	if err != nil {
		if errors.Is(err, restclient.ErrNotFound) {
			// The cached folder no longer exists remotely.
			a.folders.Invalidate()
		}

		return nil, provider.WrapRemote(err, a.creds)
	}

	for _, f := range files {
		if provider.SameName(f.Name, want) {
			return &provider.File{ID: f.ID, Name: f.Name, FolderID: folder.ID}, nil
		}
	}

	return nil, nil //nolint:nilnil // absence is a valid state, not an error
}

// Upload writes the payload, overwriting the existing file's media or
// creating a new file with a multipart/related request.
func (a *Adapter) Upload(ctx context.Context, folder provider.Folder, name string, payload []byte) error {
	existing, err := a.FindFile(ctx, folder, name)
	if err != nil {
		return err
	}

	if existing != nil {
		return a.updateMedia(ctx, existing.ID, payload)
	}

	return a.createFile(ctx, folder, name, payload)
}

func (a *Adapter) updateMedia(ctx context.Context, fileID string, payload []byte) error {
	a.logger.Info("updating file media",
		slog.String("file_id", fileID),
		slog.Int("size", len(payload)),
	)

	u := fmt.Sprintf("%s/files/%s?uploadType=media", a.uploadURL, fileID)

	resp, err := a.client.Do(ctx, http.MethodPatch, u, payload, "application/json")
	if err != nil {
		return provider.WrapRemote(err, a.creds)
	}

	resp.Body.Close()

	return nil
}

func (a *Adapter) createFile(ctx context.Context, folder provider.Folder, name string, payload []byte) error {
	a.logger.Info("creating file",
		slog.String("name", name),
		slog.Int("size", len(payload)),
	)

	meta, err := json.Marshal(map[string]any{
		"name":    provider.RemoteFileName(name),
		"parents": []string{folder.ID},
	})
	if err != nil {
		return fmt.Errorf("gdrive: encoding file metadata: %w", err)
	}

	body, contentType, err := multipartRelated(meta, payload)
	if err != nil {
		return err
	}

	u := a.uploadURL + "/files?uploadType=multipart"

	resp, err := a.client.Do(ctx, http.MethodPost, u, body, contentType)
	if err != nil {
		return provider.WrapRemote(err, a.creds)
	}

	resp.Body.Close()

	return nil
}

// Download fetches the file media. Absent file (or a 404 on the media
// fetch itself) yields (nil, nil).
func (a *Adapter) Download(ctx context.Context, folder provider.Folder, name string) ([]byte, error) {
	f, err := a.FindFile(ctx, folder, name)
	if err != nil {
		return nil, err
	}

	if f == nil {
		return nil, nil
	}

	u := fmt.Sprintf("%s/files/%s?alt=media", a.apiURL, f.ID)

	data, err := a.client.DoJSON(ctx, http.MethodGet, u, nil)
	if err != nil {
		if errors.Is(err, restclient.ErrNotFound) {
			return nil, nil
		}

		return nil, provider.WrapRemote(err, a.creds)
	}

	return data, nil
}

// multipartRelated builds the two-part body for a Drive multipart upload:
// JSON metadata followed by the media content.
func multipartRelated(meta, payload []byte) (body []byte, contentType string, err error) {
	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")

	part, err := w.CreatePart(metaHeader)
	if err != nil {
		return nil, "", fmt.Errorf("gdrive: creating metadata part: %w", err)
	}

	if _, err := part.Write(meta); err != nil {
		return nil, "", fmt.Errorf("gdrive: writing metadata part: %w", err)
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", "application/json")

	part, err = w.CreatePart(mediaHeader)
	if err != nil {
		return nil, "", fmt.Errorf("gdrive: creating media part: %w", err)
	}

	if _, err := part.Write(payload); err != nil {
		return nil, "", fmt.Errorf("gdrive: writing media part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("gdrive: finalizing multipart body: %w", err)
	}

	return buf.Bytes(), "multipart/related; boundary=" + w.Boundary(), nil
}
