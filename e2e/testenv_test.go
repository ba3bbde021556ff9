// Package e2e exercises the whole stack in-process: a real token store
// and database on disk, the real Box adapter, and the sync engine, all
// pointed at a stateful fake of the Box Content API. No network, no
// credentials: the suite runs with plain `go test`.
package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plannerkit/planner-sync/internal/engine"
	"github.com/plannerkit/planner-sync/internal/provider"
	"github.com/plannerkit/planner-sync/internal/provider/box"
	"github.com/plannerkit/planner-sync/internal/restclient"
	"github.com/plannerkit/planner-sync/internal/store"
	"github.com/plannerkit/planner-sync/internal/tokenstore"
)

const (
	testToken      = "token-e2e"
	testFolderName = "Planner"
	appFolderID    = "folder-100"
)

// fakeBox is a minimal stateful rendition of the Box Content API: one
// application folder under the root, files keyed by opaque id.
type fakeBox struct {
	mu            sync.Mutex
	folderCreated bool
	files         map[string][]byte // id -> content
	fileNames     map[string]string // name -> id
	nextID        int
	folderCreates int
	fileCreates   int
	fileUpdates   int
	failAll       int // when non-zero, every request answers this status
}

func newFakeBox() *fakeBox {
	return &fakeBox{
		files:     map[string][]byte{},
		fileNames: map[string]string{},
		nextID:    200,
	}
}

func (f *fakeBox) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /folders/{id}/items", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		var entries []map[string]string
		switch r.PathValue("id") {
		case "0":
			if f.folderCreated {
				entries = append(entries, map[string]string{
					"id": appFolderID, "type": "folder", "name": testFolderName,
				})
			}
		case appFolderID:
			for name, id := range f.fileNames {
				entries = append(entries, map[string]string{
					"id": id, "type": "file", "name": name,
				})
			}
		default:
			writeBoxError(w, http.StatusNotFound)
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"entries": entries})
	})

	mux.HandleFunc("POST /folders", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.folderCreated {
			writeBoxError(w, http.StatusConflict)
			return
		}
		f.folderCreated = true
		f.folderCreates++

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id": appFolderID, "type": "folder", "name": testFolderName,
		})
	})

	mux.HandleFunc("POST /files/content", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeBoxError(w, http.StatusBadRequest)
			return
		}

		var attrs struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal([]byte(r.FormValue("attributes")), &attrs); err != nil {
			writeBoxError(w, http.StatusBadRequest)
			return
		}

		part, _, err := r.FormFile("file")
		if err != nil {
			writeBoxError(w, http.StatusBadRequest)
			return
		}
		content, _ := io.ReadAll(part)

		f.mu.Lock()
		defer f.mu.Unlock()

		id := "file-" + strconv.Itoa(f.nextID)
		f.nextID++
		f.files[id] = content
		f.fileNames[attrs.Name] = id
		f.fileCreates++

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"entries": []map[string]string{{"id": id, "type": "file", "name": attrs.Name}},
		})
	})

	mux.HandleFunc("POST /files/{id}/content", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeBoxError(w, http.StatusBadRequest)
			return
		}
		part, _, err := r.FormFile("file")
		if err != nil {
			writeBoxError(w, http.StatusBadRequest)
			return
		}
		content, _ := io.ReadAll(part)

		f.mu.Lock()
		defer f.mu.Unlock()

		id := r.PathValue("id")
		if _, ok := f.files[id]; !ok {
			writeBoxError(w, http.StatusNotFound)
			return
		}
		f.files[id] = content
		f.fileUpdates++

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"entries": []map[string]string{{"id": id}}})
	})

	mux.HandleFunc("GET /files/{id}/content", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		content, ok := f.files[r.PathValue("id")]
		if !ok {
			writeBoxError(w, http.StatusNotFound)
			return
		}
		_, _ = w.Write(content)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		fail := f.failAll
		f.mu.Unlock()
		if fail != 0 {
			writeBoxError(w, fail)
			return
		}

		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeBoxError(w, http.StatusUnauthorized)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

// putFile seeds a remote file directly, bypassing the API.
func (f *fakeBox) putFile(name string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.folderCreated = true
	id := "file-" + strconv.Itoa(f.nextID)
	f.nextID++
	f.files[id] = content
	f.fileNames[name] = id
}

func (f *fakeBox) fileContent(name string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.fileNames[name]
	if !ok {
		return nil
	}
	return f.files[id]
}

func writeBoxError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code": status, "message": http.StatusText(status),
	})
}

// testEnv wires the full stack against one fakeBox instance.
type testEnv struct {
	remote *fakeBox
	tokens *tokenstore.Store
	store  *store.Store
	engine *engine.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	remote := newFakeBox()

	srv := httptest.NewServer(remote.handler())
	t.Cleanup(srv.Close)

	dataDir := t.TempDir()
	tokens := tokenstore.NewStore(filepath.Join(dataDir, "tokens"), logger)
	require.NoError(t, tokens.Save(string(provider.Box), testToken, time.Hour))

	creds := provider.NewCredentials(tokens, provider.Box, logger)
	client := restclient.NewClient(srv.Client(), creds, logger)
	client.SetSleepFunc(func(context.Context, time.Duration) error { return nil })

	adapter := box.New(client, creds, testFolderName, logger)
	adapter.SetBaseURLs(srv.URL, srv.URL)

	st, err := store.Open(context.Background(), filepath.Join(dataDir, "planner.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return &testEnv{
		remote: remote,
		tokens: tokens,
		store:  st,
		engine: engine.New(adapter, st, logger),
	}
}

func (env *testEnv) saveLocal(t *testing.T, name string, body string) {
	t.Helper()
	require.NoError(t, env.store.SaveDocument(context.Background(), name, []byte(body)))
}

func (env *testEnv) localDocument(t *testing.T, name string) []byte {
	t.Helper()
	doc, err := env.store.Document(context.Background(), name)
	require.NoError(t, err)
	if doc == nil {
		return nil
	}
	return doc.Body
}
