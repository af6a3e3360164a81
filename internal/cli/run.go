package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"shortvol-trader/internal/broker"
	"shortvol-trader/internal/engine"
	"shortvol-trader/internal/executor"
	"shortvol-trader/internal/scanner"
	"shortvol-trader/internal/session"
	"shortvol-trader/internal/store"
	"shortvol-trader/internal/stream"
	"shortvol-trader/pkg/utils"
)

// addRunCommands adds the engine run command.
func addRunCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
}

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading engine",
		Long: `Run the trading engine until interrupted.

Market data always comes from the live feed; in paper mode orders go to
the simulated broker instead of the exchange. Open positions are left
untouched on shutdown.`,
		Example: `  shortvol run --strategy credit-spread
  shortvol run --strategy iron-condor --mode paper`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config

			if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
				cfg.Trading.Mode = mode
			}

			if app.Zerodha == nil || !app.Zerodha.IsAuthenticated() {
				output.Error("Not authenticated. Run 'shortvol login' first.")
				return nil
			}

			// Orders go to the exchange only in live mode; market data is
			// always real.
			var orderBroker broker.Broker = app.Zerodha
			if cfg.Trading.Mode != "live" {
				orderBroker = broker.NewSimBroker()
				output.Warning("Paper mode: orders are simulated.")
			}

			ticker := broker.NewZerodhaTicker(broker.ZerodhaTickerConfig{
				APIKey:      cfg.Credentials.Zerodha.APIKey,
				AccessToken: app.Zerodha.AccessToken(),
			})

			journal, err := store.NewSQLiteJournal(cfg.Trading.JournalDB)
			if err != nil {
				output.Error("Journal unavailable: %v", err)
				return err
			}
			defer journal.Close()

			sess := session.New(cfg)
			feed := stream.NewFeed(cfg, sess, ticker, app.Logger)
			sc := scanner.New(cfg, app.Zerodha, sess, app.Logger)
			exec := executor.New(cfg, orderBroker, sess.Ledger, journal, app.Logger)
			eng := engine.New(cfg, sess, app.Zerodha, feed, sc, exec, journal, app.Logger)

			statusEvery := 10
			ticks := 0
			eng.OnSnapshot = func(s session.Snapshot) {
				ticks++
				if ticks%statusEvery != 0 {
					return
				}
				output.Printf("spot %.1f | vix %.2f | rank %.0f | legs %d | pnl %s | rolls %d\n",
					s.Spot, s.VIX, s.IVRank, len(s.Legs), utils.FormatPnL(s.SessionPnL), s.RollCount)
			}

			if name, _ := cmd.Flags().GetString("strategy"); name != "" {
				if err := eng.StartStrategy(name); err != nil {
					return err
				}
				output.Success("Strategy %s armed.", name)
			} else {
				output.Info("No strategy armed; engine runs data-only.")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			output.Info("Engine running in %s mode. Ctrl+C to stop.", cfg.Trading.Mode)
			if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			output.Warning("Engine stopped. Open positions (if any) were left untouched.")
			return nil
		},
	}
	cmd.Flags().String("strategy", "", "strategy to arm: credit-spread or iron-condor")
	cmd.Flags().String("mode", "", "override trading mode: live or paper")
	return cmd
}
