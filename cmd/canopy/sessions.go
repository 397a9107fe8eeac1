package main

import (
	"fmt"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/cuemby/canopy/pkg/config"
	"github.com/cuemby/canopy/pkg/storage"
	"github.com/cuemby/canopy/pkg/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var sessionsCmd = newSessionsCmd()

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		Long: `List the sessions recorded in the session database.

The database is opened read-only, so this works while the server is
stopped. A running server holds the file lock; retry after it exits.

Examples:
  canopy sessions --data-dir ./canopy-data
  canopy sessions --status expired -o json`,
		RunE: runSessions,
	}

	cmd.Flags().StringP("config", "c", "", "YAML config file")
	cmd.Flags().String("data-dir", "", "Directory of the session database")
	cmd.Flags().String("status", "", "Only show sessions with this status (active, expired, closed)")
	cmd.Flags().StringP("output", "o", "table", "Output format (table, json)")
	return cmd
}

func runSessions(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir, _ = cmd.Flags().GetString("data-dir")
	}
	status, _ := cmd.Flags().GetString("status")
	output, _ := cmd.Flags().GetString("output")

	store, err := storage.OpenBoltStore(filepath.Join(cfg.DataDir, storage.DatabaseFile), true)
	if err != nil {
		return err
	}
	defer store.Close()

	all, err := store.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions := filterSessions(all, types.SessionStatus(status))

	out := cmd.OutOrStdout()
	switch output {
	case "json":
		data, err := json.MarshalIndent(sessions, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	case "table":
		fmt.Fprintf(out, "%-36s  %-8s  %-5s  %-20s  %-20s  %s\n",
			"ID", "STATUS", "ROOTS", "CREATED", "LAST ACCESS", "REMOTE")
		for _, s := range sessions {
			fmt.Fprintf(out, "%-36s  %-8s  %-5d  %-20s  %-20s  %s\n",
				s.ID, s.Status, s.Roots, formatTime(s.CreatedAt), formatTime(s.LastAccess), s.RemoteAddr)
		}
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
	return nil
}

func filterSessions(sessions []*types.Session, status types.SessionStatus) []*types.Session {
	if status == "" {
		return sessions
	}
	out := make([]*types.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Status == status {
			out = append(out, s)
		}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
