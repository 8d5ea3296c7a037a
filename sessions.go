package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/perchd/perch/db"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent sessions in a formatted table",
	Long:  `List recently persisted transcription sessions from the session store.`,
	Run:   runSessions,
}

func init() {
	sessionsCmd.Flags().IntP("limit", "n", 20, "How many sessions to show")
}

func runSessions(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	dsn := viper.GetString("database_url")
	if dsn == "" {
		logger.Fatal("no database_url configured; nothing is persisted without one")
	}

	store, err := db.Open(cmd.Context(), dsn, logger.WithPrefix("data"))
	if err != nil {
		logger.Fatal("open session store", "error", err)
	}
	defer store.Close()

	records, err := store.RecentSessions(cmd.Context(), limit)
	if err != nil {
		logger.Fatal("list sessions", "error", err)
	}

	if len(records) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Kind", "Model", "Started At", "Audio", "Text"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, rec := range records {
		table.Append([]string{
			shortID(rec.ID),
			rec.Kind,
			rec.Model,
			rec.StartedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.2f s", rec.Duration),
			truncate(rec.Text, 60),
		})
	}

	table.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
