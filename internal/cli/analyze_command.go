package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"playsync.dev/internal/tracking"
)

func newAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze recorded playback history",
		Long:  "Queries the playback history database for aggregates such as most played media, errors, and summary statistics.",
	}

	cmd.PersistentFlags().String("db", "", "Path to the history database (default: cache directory)")
	cmd.PersistentFlags().Int("days", 0, "Only include the last N days")
	cmd.PersistentFlags().String("uri", "", "Filter by media URI")
	cmd.PersistentFlags().Int("limit", 0, "Maximum results (default 20)")
	cmd.PersistentFlags().Bool("json", false, "Emit machine-readable JSON")

	cmd.AddCommand(newAnalyzeSummaryCommand())
	cmd.AddCommand(newAnalyzeMostPlayedCommand())
	cmd.AddCommand(newAnalyzeErrorsCommand())

	return cmd
}

// openAnalyzeDatabase resolves the database path from the flag, the
// loaded configuration, or the default cache location.
func openAnalyzeDatabase(cmd *cobra.Command, cli *CLI) (*sql.DB, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		cfg, err := loadAndValidateConfig(cmd, cli)
		if err != nil {
			return nil, err
		}
		setupLogging(cfg, cmd.ErrOrStderr())
		if cfg.Tracking != nil && cfg.Tracking.DatabasePath != "" {
			dbPath = cfg.Tracking.DatabasePath
		}
	}
	if dbPath == "" {
		resolved, err := tracking.GetDatabasePath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve history database path: %w", err)
		}
		dbPath = resolved
	}

	db, err := tracking.NewDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return db, nil
}

func filterFromFlags(cmd *cobra.Command) tracking.QueryFilter {
	days, _ := cmd.Flags().GetInt("days")
	uri, _ := cmd.Flags().GetString("uri")
	limit, _ := cmd.Flags().GetInt("limit")
	return tracking.QueryFilter{Days: days, URI: uri, Limit: limit}
}

func newAnalyzeSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Overall playback statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := cliFromContext(cmd.Context())
			if cli == nil {
				return fmt.Errorf("CLI instance not found in context")
			}
			db, err := openAnalyzeDatabase(cmd, cli)
			if err != nil {
				return err
			}
			defer db.Close()

			summary, err := tracking.GetSummary(db, filterFromFlags(cmd))
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				data, err := json.MarshalIndent(summary, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}

			cmd.Printf("sessions:      %d\n", summary.Sessions)
			cmd.Printf("unique media:  %d\n", summary.UniqueMedia)
			cmd.Printf("plays:         %d\n", summary.Plays)
			cmd.Printf("completes:     %d\n", summary.Completes)
			cmd.Printf("seeks:         %d\n", summary.Seeks)
			cmd.Printf("errors:        %d\n", summary.Errors)
			return nil
		},
	}
}

func newAnalyzeMostPlayedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "most-played",
		Short: "Media ordered by play count",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := cliFromContext(cmd.Context())
			if cli == nil {
				return fmt.Errorf("CLI instance not found in context")
			}
			db, err := openAnalyzeDatabase(cmd, cli)
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := tracking.GetMostPlayed(db, filterFromFlags(cmd))
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				data, err := json.MarshalIndent(stats, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}

			if len(stats) == 0 {
				cmd.Println("no playback history recorded")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 4, 4, 2, ' ', 0)
			fmt.Fprintln(w, "URI\tPLAYS\tSESSIONS\tCOMPLETES\tERRORS\tLAST PLAYED")
			for _, s := range stats {
				last := ""
				if s.LastPlayed > 0 {
					last = time.Unix(s.LastPlayed, 0).Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n", s.URI, s.Plays, s.Sessions, s.Completes, s.Errors, last)
			}
			return w.Flush()
		},
	}
}

func newAnalyzeErrorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "errors",
		Short: "Recorded playback failures, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := cliFromContext(cmd.Context())
			if cli == nil {
				return fmt.Errorf("CLI instance not found in context")
			}
			db, err := openAnalyzeDatabase(cmd, cli)
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := tracking.GetErrors(db, filterFromFlags(cmd))
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				data, err := json.MarshalIndent(records, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}

			if len(records) == 0 {
				cmd.Println("no playback errors recorded")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 4, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tURI\tSESSION\tDETAIL")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", time.Unix(r.Timestamp, 0).Format(time.RFC3339), r.URI, r.SessionID, r.Detail)
			}
			return w.Flush()
		},
	}
}
