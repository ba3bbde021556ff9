package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/plannerkit/planner-sync/internal/provider"
	"github.com/plannerkit/planner-sync/internal/store"
	"github.com/plannerkit/planner-sync/internal/tokenstore"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connection state and last sync per provider",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

// providerStatus is the JSON schema for `status --json`.
type providerStatus struct {
	Provider     string `json:"provider"`
	Connected    bool   `json:"connected"`
	FolderCached bool   `json:"folder_cached"`
	LastSync     string `json:"last_sync,omitempty"`
	LastOutcome  string `json:"last_outcome,omitempty"`
}

func runStatus(_ *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := context.Background()

	tokens := openTokenStore(logger)

	st, err := store.Open(ctx, cfg.DatabasePath(), logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var statuses []providerStatus
	for _, id := range provider.IDs {
		s := providerStatus{Provider: string(id)}

		tok, err := tokens.Load(string(id))
		if err != nil {
			return err
		}
		s.Connected = tok != nil

		if folderID, loadErr := tokens.Meta(string(id), tokenstore.MetaFolderID); loadErr == nil && folderID != "" {
			s.FolderCached = true
		}

		rec, err := st.LastSync(ctx, string(id))
		if err != nil {
			return err
		}
		if rec != nil {
			s.LastSync = rec.FinishedAt.Format("2006-01-02 15:04:05")
			s.LastOutcome = rec.Outcome
		}

		statuses = append(statuses, s)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	for _, s := range statuses {
		fmt.Println(formatStatusLine(s))
	}

	return nil
}

// formatStatusLine renders one provider's row for the text output.
func formatStatusLine(s providerStatus) string {
	state := "not connected"
	if s.Connected {
		state = "connected"
	}

	line := fmt.Sprintf("%-10s %s", s.Provider, state)
	if s.LastSync != "" {
		line += fmt.Sprintf("  last sync %s (%s)", s.LastSync, s.LastOutcome)
	}

	return line
}
