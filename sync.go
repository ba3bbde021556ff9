package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plannerkit/planner-sync/internal/engine"
	"github.com/plannerkit/planner-sync/internal/provider"
	"github.com/plannerkit/planner-sync/internal/store"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <provider>",
		Short: "Download, merge, and upload planner data with a provider",
		Args:  cobra.ExactArgs(1),
		RunE:  runSync,
	}
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <provider>",
		Short: "Push local planner data to a provider, replacing remote state",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpload,
	}
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <provider>",
		Short: "Fetch remote planner data from a provider, replacing local state",
		Args:  cobra.ExactArgs(1),
		RunE:  runDownload,
	}
}

// withEngine wires the store and adapter for one command invocation and
// tears the store down afterwards.
func withEngine(providerArg string, fn func(ctx context.Context, e *engine.Engine) error) error {
	logger := buildLogger()
	ctx := context.Background()

	adapter, err := resolveAdapter(openTokenStore(logger), logger, providerArg)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.DatabasePath(), logger)
	if err != nil {
		return err
	}
	defer st.Close()

	return describeFailure(fn(ctx, engine.New(adapter, st, logger)))
}

func runSync(_ *cobra.Command, args []string) error {
	return withEngine(args[0], func(ctx context.Context, e *engine.Engine) error {
		res, err := e.SyncData(ctx)
		if err != nil {
			return err
		}

		statusf("Synced: %d bytes of data, %d bytes of settings.\n",
			len(res.Document), len(res.Settings))
		return nil
	})
}

func runUpload(_ *cobra.Command, args []string) error {
	return withEngine(args[0], func(ctx context.Context, e *engine.Engine) error {
		if err := e.UploadData(ctx); err != nil {
			return err
		}

		statusf("Uploaded local planner data.\n")
		return nil
	})
}

func runDownload(_ *cobra.Command, args []string) error {
	return withEngine(args[0], func(ctx context.Context, e *engine.Engine) error {
		if err := e.DownloadData(ctx); err != nil {
			return err
		}

		statusf("Downloaded remote planner data.\n")
		return nil
	})
}

// describeFailure rewrites the distinguished error kinds into actionable
// messages. Authentication expiry must prompt re-authentication rather
// than look like a transient failure.
func describeFailure(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, provider.ErrNotAuthenticated):
		return fmt.Errorf("not connected; run 'planner-sync connect <provider>' first")
	case errors.Is(err, provider.ErrAuthExpired):
		return fmt.Errorf("session expired; run 'planner-sync connect <provider>' to sign in again")
	default:
		return err
	}
}
