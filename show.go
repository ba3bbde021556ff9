package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/plannerkit/planner-sync/internal/provider"
	"github.com/plannerkit/planner-sync/internal/store"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "show <data|settings>",
		Short:     "Print the local planner document or settings",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"data", "settings"},
		RunE:      runShow,
	}
}

func runShow(_ *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := context.Background()

	name := provider.DocumentName
	if args[0] == "settings" {
		name = provider.SettingsName
	}

	st, err := store.Open(ctx, cfg.DatabasePath(), logger)
	if err != nil {
		return err
	}
	defer st.Close()

	doc, err := st.Document(ctx, name)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("no local %s yet; run 'planner-sync sync <provider>' or 'download' first", args[0])
	}

	if flagJSON {
		_, err = os.Stdout.Write(append(doc.Body, '\n'))
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, doc.Body, "", "  "); err != nil {
		// Not valid JSON: print raw rather than fail.
		_, werr := os.Stdout.Write(append(doc.Body, '\n'))
		return werr
	}

	fmt.Printf("%s (updated %s)\n%s\n", args[0], doc.UpdatedAt.Format("2006-01-02 15:04:05"), pretty.String())
	return nil
}
