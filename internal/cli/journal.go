package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shortvol-trader/internal/store"
	"shortvol-trader/pkg/utils"
)

// addJournalCommands adds the trade journal inspection commands.
func addJournalCommands(rootCmd *cobra.Command, app *App) {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the trade journal",
	}
	journalCmd.AddCommand(newJournalFillsCmd(app))
	journalCmd.AddCommand(newJournalMarksCmd(app))
	rootCmd.AddCommand(journalCmd)
}

func newJournalFillsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fills",
		Short: "List journaled fills",
		Example: `  shortvol journal fills
  shortvol journal fills --since 24h --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			journal, since, err := openJournal(cmd, app)
			if err != nil {
				return err
			}
			defer journal.Close()

			fills, err := journal.Fills(cmd.Context(), since)
			if err != nil {
				return fmt.Errorf("reading fills: %w", err)
			}

			if output.IsJSON() {
				return output.JSON(fills)
			}
			if len(fills) == 0 {
				output.Info("No fills recorded since %s.", since.Format("2006-01-02 15:04"))
				return nil
			}

			output.Bold("%-20s %-24s %-5s %-6s %5s %10s  %s",
				"TIME", "SYMBOL", "SIDE", "ACTION", "QTY", "PRICE", "TAG")
			for _, f := range fills {
				side := f.Side
				if side == "SELL" {
					side = output.Red(side)
				} else {
					side = output.Green(side)
				}
				output.Printf("%-20s %-24s %-5s %-6s %5d %10.2f  %s\n",
					f.Timestamp.Format("2006-01-02 15:04:05"),
					f.Symbol, side, f.Action, f.Quantity, f.Price, f.Tag)
			}
			return nil
		},
	}
	cmd.Flags().String("since", "", "only show records newer than this duration (e.g. 24h); default all")
	return cmd
}

func newJournalMarksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marks",
		Short: "List periodic session P/L marks",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			journal, since, err := openJournal(cmd, app)
			if err != nil {
				return err
			}
			defer journal.Close()

			marks, err := journal.Marks(cmd.Context(), since)
			if err != nil {
				return fmt.Errorf("reading marks: %w", err)
			}

			if output.IsJSON() {
				return output.JSON(marks)
			}
			if len(marks) == 0 {
				output.Info("No marks recorded since %s.", since.Format("2006-01-02 15:04"))
				return nil
			}

			output.Bold("%-20s %12s %6s", "TIME", "SESSION P/L", "LEGS")
			for _, m := range marks {
				pnl := utils.FormatPnL(m.SessionPnL)
				if m.SessionPnL < 0 {
					pnl = output.Red(pnl)
				} else if m.SessionPnL > 0 {
					pnl = output.Green(pnl)
				}
				output.Printf("%-20s %12s %6d\n",
					m.Timestamp.Format("2006-01-02 15:04:05"), pnl, m.OpenLegs)
			}
			return nil
		},
	}
	cmd.Flags().String("since", "", "only show records newer than this duration (e.g. 24h)")
	return cmd
}

func openJournal(cmd *cobra.Command, app *App) (store.Journal, time.Time, error) {
	journal, err := store.NewSQLiteJournal(app.Config.Trading.JournalDB)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("opening journal: %w", err)
	}

	since := time.Time{}
	if raw, _ := cmd.Flags().GetString("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			journal.Close()
			return nil, time.Time{}, fmt.Errorf("invalid --since duration %q: %w", raw, err)
		}
		since = time.Now().Add(-d)
	}
	return journal, since, nil
}
