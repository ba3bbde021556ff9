package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plannerkit/planner-sync/internal/provider"
	"github.com/plannerkit/planner-sync/internal/restclient"
	"github.com/plannerkit/planner-sync/internal/tokenstore"
)

// fakeDrive is a minimal in-memory Drive v3 API: files.list queries,
// folder create, multipart create, media update and media download.
type fakeDrive struct {
	folderID      string
	files         map[string][]byte // id -> content
	fileNames     map[string]string // name -> id
	folderCreates atomic.Int32
	fileCreates   atomic.Int32
	mediaUpdates  atomic.Int32
	failAll       int
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		files:     make(map[string][]byte),
		fileNames: make(map[string]string),
	}
}

func (f *fakeDrive) list(q string) []map[string]string {
	out := []map[string]string{}

	if strings.Contains(q, "mimeType='application/vnd.google-apps.folder'") {
		if f.folderID != "" {
			out = append(out, map[string]string{"id": f.folderID, "name": "Planner"})
		}

		return out
	}

	for name, id := range f.fileNames {
		if strings.Contains(q, "name='"+name+"'") {
			out = append(out, map[string]string{"id": id, "name": name})
		}
	}

	return out
}

func (f *fakeDrive) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.failAll != 0 {
			http.Error(w, "forced failure", f.failAll)
			return
		}

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/files":
			if alt := r.URL.Query().Get("alt"); alt == "media" {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}

			_ = json.NewEncoder(w).Encode(map[string]any{"files": f.list(r.URL.Query().Get("q"))})

		case r.Method == http.MethodPost && r.URL.Path == "/files":
			var req struct {
				Name     string `json:"name"`
				MimeType string `json:"mimeType"`
			}

			_ = json.NewDecoder(r.Body).Decode(&req)
			f.folderCreates.Add(1)
			f.folderID = "gfolder-1"
			_, _ = fmt.Fprintf(w, `{"id":"gfolder-1","name":%q}`, req.Name)

		case r.Method == http.MethodPost && r.URL.Path == "/upload/files":
			mediaType := r.Header.Get("Content-Type")
			if !strings.HasPrefix(mediaType, "multipart/related") {
				http.Error(w, "expected multipart/related", http.StatusBadRequest)
				return
			}

			body, _ := io.ReadAll(r.Body)

			// Crude part split: metadata JSON part then media part.
			parts := strings.Split(string(body), "\r\n\r\n")
			if len(parts) < 3 {
				http.Error(w, "malformed multipart body", http.StatusBadRequest)
				return
			}

			var meta struct {
				Name string `json:"name"`
			}

			_ = json.Unmarshal([]byte(strings.SplitN(parts[1], "\r\n", 2)[0]), &meta)

			media := strings.SplitN(parts[2], "\r\n", 2)[0]

			n := f.fileCreates.Add(1)
			id := fmt.Sprintf("gfile-%d", n)
			f.fileNames[meta.Name] = id
			f.files[id] = []byte(media)

			_, _ = fmt.Fprintf(w, `{"id":%q,"name":%q}`, id, meta.Name)

		case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/upload/files/"):
			id := strings.TrimPrefix(r.URL.Path, "/upload/files/")
			body, _ := io.ReadAll(r.Body)
			f.mediaUpdates.Add(1)
			f.files[id] = body
			_, _ = fmt.Fprintf(w, `{"id":%q}`, id)

		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/files/"):
			id := strings.TrimPrefix(r.URL.Path, "/files/")

			content, ok := f.files[id]
			if !ok {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}

			_, _ = w.Write(content)

		default:
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusTeapot)
		}
	})
}

func newTestAdapter(t *testing.T, fake *fakeDrive) (*Adapter, *tokenstore.Store) {
	t.Helper()

	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	store := tokenstore.NewStore(t.TempDir(), nil)
	require.NoError(t, store.Save(string(provider.GoogleDrive), "drive-token", time.Hour))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	creds := provider.NewCredentials(store, provider.GoogleDrive, logger)

	client := restclient.NewClient(http.DefaultClient, creds, logger)
	client.SetSleepFunc(func(context.Context, time.Duration) error { return nil })

	a := New(client, creds, "Planner", logger)
	a.SetBaseURLs(srv.URL, srv.URL+"/upload")

	return a, store
}

func TestEnsureFolder_CreatesOnce(t *testing.T) {
	fake := newFakeDrive()
	a, _ := newTestAdapter(t, fake)

	f1, err := a.EnsureFolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gfolder-1", f1.ID)

	f2, err := a.EnsureFolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f1, f2)

	assert.Equal(t, int32(1), fake.folderCreates.Load())
}

func TestEnsureFolder_FindsExisting(t *testing.T) {
	fake := newFakeDrive()
	fake.folderID = "gfolder-1"
	a, _ := newTestAdapter(t, fake)

	f, err := a.EnsureFolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gfolder-1", f.ID)
	assert.Zero(t, fake.folderCreates.Load())
}

func TestFindFile_Absent(t *testing.T) {
	fake := newFakeDrive()
	fake.folderID = "gfolder-1"
	a, _ := newTestAdapter(t, fake)

	folder, err := a.EnsureFolder(context.Background())
	require.NoError(t, err)

	f, err := a.FindFile(context.Background(), folder, provider.DocumentName)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestUpload_CreateThenOverwrite(t *testing.T) {
	fake := newFakeDrive()
	a, _ := newTestAdapter(t, fake)

	folder, err := a.EnsureFolder(context.Background())
	require.NoError(t, err)

	require.NoError(t, a.Upload(context.Background(), folder, provider.DocumentName, []byte(`{"v":1}`)))
	assert.Equal(t, int32(1), fake.fileCreates.Load())
	assert.Zero(t, fake.mediaUpdates.Load())

	require.NoError(t, a.Upload(context.Background(), folder, provider.DocumentName, []byte(`{"v":2}`)))
	assert.Equal(t, int32(1), fake.fileCreates.Load(), "existing file must be patched, not recreated")
	assert.Equal(t, int32(1), fake.mediaUpdates.Load())

	data, err := a.Download(context.Background(), folder, provider.DocumentName)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))
}

func TestDownload_Absent(t *testing.T) {
	fake := newFakeDrive()
	fake.folderID = "gfolder-1"
	a, _ := newTestAdapter(t, fake)

	folder, err := a.EnsureFolder(context.Background())
	require.NoError(t, err)

	data, err := a.Download(context.Background(), folder, provider.SettingsName)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestUnauthorized_ClearsCredential(t *testing.T) {
	fake := newFakeDrive()
	fake.failAll = http.StatusUnauthorized
	a, store := newTestAdapter(t, fake)

	_, err := a.EnsureFolder(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrAuthExpired)

	tok, loadErr := store.Load(string(provider.GoogleDrive))
	require.NoError(t, loadErr)
	assert.Nil(t, tok)
}

func TestQueryEscaping(t *testing.T) {
	assert.Equal(t, `'Planner'`, quoteQueryValue("Planner"))
	assert.Equal(t, `'it\'s'`, quoteQueryValue("it's"))
}
