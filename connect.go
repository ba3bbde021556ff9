package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/plannerkit/planner-sync/internal/authflow"
	"github.com/plannerkit/planner-sync/internal/provider"
)

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <provider>",
		Short: "Authenticate with a storage provider (box, onedrive, gdrive)",
		Args:  cobra.ExactArgs(1),
		RunE:  runConnect,
	}
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <provider>",
		Short: "Remove the stored credential for a provider",
		Args:  cobra.ExactArgs(1),
		RunE:  runDisconnect,
	}
}

func runConnect(_ *cobra.Command, args []string) error {
	logger := buildLogger()

	id, err := provider.ParseID(args[0])
	if err != nil {
		return err
	}

	pc := cfg.Provider(string(id))
	if pc.ClientID == "" {
		return fmt.Errorf("no client_id configured for %s; add it under [provider.%s] in the config file", id, id)
	}

	tokens := openTokenStore(logger)
	flow := authflow.New(id, authflow.Config{
		ClientID:     pc.ClientID,
		Scope:        pc.Scope,
		RedirectPort: pc.RedirectPort,
	}, tokens, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = flow.Run(ctx, func(authURL string) {
		// The sign-in prompt must stay visible even with --quiet.
		fmt.Fprintf(os.Stderr, "To sign in, visit: %s\n", authURL)
		_ = openBrowser(authURL)
	})
	if err != nil {
		return err
	}

	statusf("Connected to %s.\n", id)
	return nil
}

func runDisconnect(_ *cobra.Command, args []string) error {
	logger := buildLogger()

	id, err := provider.ParseID(args[0])
	if err != nil {
		return err
	}

	if err := openTokenStore(logger).Clear(string(id)); err != nil {
		return err
	}

	statusf("Disconnected from %s.\n", id)
	return nil
}

// openBrowser makes a best-effort attempt to open the URL in the user's
// browser. Failure is fine: the URL was already printed.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "linux":
		return exec.Command("xdg-open", url).Start()
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}
