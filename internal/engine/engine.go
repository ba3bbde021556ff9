// Package engine orchestrates one round-trip synchronization between the
// local document store and whichever provider adapter is currently
// selected. A cycle downloads both remote blobs, merges them field-wise
// into the local blobs (remote wins), persists the merged result, then
// uploads it back. The cycle is not atomic: a failure after the local
// write but before the upload leaves local and remote diverged until the
// next sync. Completed local writes are never rolled back.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/plannerkit/planner-sync/internal/provider"
	"github.com/plannerkit/planner-sync/internal/store"
)

// ErrSyncAborted marks any failure inside a sync cycle. Use errors.Is to
// detect it; the underlying cause is reachable via errors.As/Unwrap.
var ErrSyncAborted = errors.New("sync aborted")

// AbortError reports which step of a sync cycle failed. It matches both
// ErrSyncAborted and the wrapped cause.
type AbortError struct {
	Step string
	Err  error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("engine: sync aborted at %s: %v", e.Step, e.Err)
}

func (e *AbortError) Unwrap() []error {
	return []error{ErrSyncAborted, e.Err}
}

func abort(step string, err error) error {
	return &AbortError{Step: step, Err: err}
}

// LocalStore is the slice of the document store the engine needs.
// *store.Store satisfies it.
type LocalStore interface {
	Document(ctx context.Context, name string) (*store.Document, error)
	SaveDocument(ctx context.Context, name string, body []byte) error
	RecordSync(ctx context.Context, providerID, direction, outcome, detail string) error
}

// Result holds the merged blobs produced by a completed cycle.
type Result struct {
	Document []byte
	Settings []byte
}

// Engine drives sync cycles against a single provider adapter.
type Engine struct {
	adapter provider.Adapter
	local   LocalStore
	logger  *slog.Logger
}

// New returns an engine bound to one adapter and one local store.
func New(adapter provider.Adapter, local LocalStore, logger *slog.Logger) *Engine {
	return &Engine{adapter: adapter, local: local, logger: logger}
}

// SyncData runs one full download-merge-upload cycle. Any step failure
// aborts the remaining steps and is reported as an AbortError; the
// outcome is journaled either way.
func (e *Engine) SyncData(ctx context.Context) (*Result, error) {
	res, err := e.syncData(ctx)
	e.record(ctx, store.DirectionSync, err)
	return res, err
}

func (e *Engine) syncData(ctx context.Context) (*Result, error) {
	folder, err := e.adapter.EnsureFolder(ctx)
	if err != nil {
		return nil, abort("resolve folder", err)
	}

	// The two blobs live in independent files, so the downloads run
	// concurrently. Both must land before the merge.
	var remoteDoc, remoteSettings []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		remoteDoc, err = e.adapter.Download(gctx, folder, provider.DocumentName)
		return err
	})
	g.Go(func() error {
		var err error
		remoteSettings, err = e.adapter.Download(gctx, folder, provider.SettingsName)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, abort("download", err)
	}

	localDoc, localSettings, err := e.readLocal(ctx)
	if err != nil {
		return nil, abort("read local", err)
	}

	mergedDoc, err := mergeDocuments(localDoc, remoteDoc)
	if err != nil {
		return nil, abort("merge", err)
	}
	mergedSettings, err := mergeDocuments(localSettings, remoteSettings)
	if err != nil {
		return nil, abort("merge", err)
	}

	if err := e.local.SaveDocument(ctx, provider.DocumentName, mergedDoc); err != nil {
		return nil, abort("persist", err)
	}
	if err := e.local.SaveDocument(ctx, provider.SettingsName, mergedSettings); err != nil {
		return nil, abort("persist", err)
	}

	if err := e.uploadPair(ctx, folder, mergedDoc, mergedSettings); err != nil {
		return nil, abort("upload", err)
	}

	e.logger.Info("sync cycle complete",
		slog.String("provider", string(e.adapter.ID())),
		slog.Int("document_bytes", len(mergedDoc)),
		slog.Int("settings_bytes", len(mergedSettings)),
	)

	return &Result{Document: mergedDoc, Settings: mergedSettings}, nil
}

// UploadData pushes the local blobs to the remote without merging.
// Remote state for the two files is overwritten.
func (e *Engine) UploadData(ctx context.Context) error {
	err := e.uploadData(ctx)
	e.record(ctx, store.DirectionUpload, err)
	return err
}

func (e *Engine) uploadData(ctx context.Context) error {
	folder, err := e.adapter.EnsureFolder(ctx)
	if err != nil {
		return abort("resolve folder", err)
	}

	localDoc, localSettings, err := e.readLocal(ctx)
	if err != nil {
		return abort("read local", err)
	}
	if localDoc == nil {
		localDoc = []byte(`{}`)
	}
	if localSettings == nil {
		localSettings = []byte(`{}`)
	}

	if err := e.uploadPair(ctx, folder, localDoc, localSettings); err != nil {
		return abort("upload", err)
	}
	return nil
}

// DownloadData replaces the local blobs with the remote ones. A blob
// absent remotely leaves its local counterpart untouched.
func (e *Engine) DownloadData(ctx context.Context) error {
	err := e.downloadData(ctx)
	e.record(ctx, store.DirectionDownload, err)
	return err
}

func (e *Engine) downloadData(ctx context.Context) error {
	folder, err := e.adapter.EnsureFolder(ctx)
	if err != nil {
		return abort("resolve folder", err)
	}

	var remoteDoc, remoteSettings []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		remoteDoc, err = e.adapter.Download(gctx, folder, provider.DocumentName)
		return err
	})
	g.Go(func() error {
		var err error
		remoteSettings, err = e.adapter.Download(gctx, folder, provider.SettingsName)
		return err
	})
	if err := g.Wait(); err != nil {
		return abort("download", err)
	}

	if remoteDoc != nil {
		if err := e.local.SaveDocument(ctx, provider.DocumentName, remoteDoc); err != nil {
			return abort("persist", err)
		}
	}
	if remoteSettings != nil {
		if err := e.local.SaveDocument(ctx, provider.SettingsName, remoteSettings); err != nil {
			return abort("persist", err)
		}
	}
	return nil
}

func (e *Engine) readLocal(ctx context.Context) (doc, settings []byte, err error) {
	d, err := e.local.Document(ctx, provider.DocumentName)
	if err != nil {
		return nil, nil, err
	}
	s, err := e.local.Document(ctx, provider.SettingsName)
	if err != nil {
		return nil, nil, err
	}
	if d != nil {
		doc = d.Body
	}
	if s != nil {
		settings = s.Body
	}
	return doc, settings, nil
}

func (e *Engine) uploadPair(ctx context.Context, folder provider.Folder, doc, settings []byte) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.adapter.Upload(gctx, folder, provider.DocumentName, doc)
	})
	g.Go(func() error {
		return e.adapter.Upload(gctx, folder, provider.SettingsName, settings)
	})
	return g.Wait()
}

func (e *Engine) record(ctx context.Context, direction string, opErr error) {
	outcome, detail := store.OutcomeOK, ""
	if opErr != nil {
		outcome, detail = store.OutcomeFailed, opErr.Error()
	}
	if err := e.local.RecordSync(ctx, string(e.adapter.ID()), direction, outcome, detail); err != nil {
		// Journaling is best-effort; the operation result stands.
		e.logger.Warn("recording sync outcome failed", slog.Any("error", err))
	}
}
