package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/plannerkit/planner-sync/internal/calendar"
	"github.com/plannerkit/planner-sync/internal/provider"
)

var flagAgendaDays int

func newAgendaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "List upcoming Google Calendar events",
		Long:  "Lists upcoming events from the primary Google Calendar, using the stored Google credential.",
		Args:  cobra.NoArgs,
		RunE:  runAgenda,
	}
	cmd.Flags().IntVar(&flagAgendaDays, "days", 7, "number of days to list")

	return cmd
}

// agendaEvent is the JSON schema for `agenda --json`.
type agendaEvent struct {
	Title    string `json:"title"`
	Start    string `json:"start"`
	End      string `json:"end"`
	AllDay   bool   `json:"all_day"`
	Location string `json:"location,omitempty"`
}

func runAgenda(_ *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := context.Background()

	tok, err := openTokenStore(logger).Load(string(provider.GoogleDrive))
	if err != nil {
		return err
	}
	if tok == nil {
		return fmt.Errorf("not connected to gdrive; run 'planner-sync connect gdrive' first")
	}

	client, err := calendar.New(ctx, tok.AccessToken, logger)
	if err != nil {
		return err
	}

	from := time.Now()
	to := from.AddDate(0, 0, flagAgendaDays)
	it := client.Events(ctx, from, to)

	var events []agendaEvent
	for {
		ev, err := it.Next()
		if err != nil {
			return err
		}
		if ev == nil {
			break
		}

		events = append(events, agendaEvent{
			Title:    ev.Title,
			Start:    ev.Start.Format(time.RFC3339),
			End:      ev.End.Format(time.RFC3339),
			AllDay:   ev.AllDay,
			Location: ev.Location,
		})
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	if len(events) == 0 {
		statusf("No events in the next %d days.\n", flagAgendaDays)
		return nil
	}

	for _, ev := range events {
		when := ev.Start
		if ev.AllDay {
			when = ev.Start[:10] + " (all day)"
		}
		fmt.Printf("%-22s %s", when, ev.Title)
		if ev.Location != "" {
			fmt.Printf(" @ %s", ev.Location)
		}
		fmt.Println()
	}

	return nil
}
