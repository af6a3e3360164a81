// Package cli provides the command-line interface for the trading engine.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"shortvol-trader/internal/broker"
	"shortvol-trader/internal/config"
)

// Version information
const Version = "0.1.0"

// App holds the application dependencies shared across commands.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Zerodha *broker.ZerodhaBroker
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Credentials.Zerodha.APIKey != "" {
		app.Zerodha = broker.NewZerodhaBroker(broker.ZerodhaConfig{
			APIKey:    cfg.Credentials.Zerodha.APIKey,
			APISecret: cfg.Credentials.Zerodha.APISecret,
			UserID:    cfg.Credentials.Zerodha.UserID,
		})
		logger.Debug().Msg("Zerodha broker initialized")
	}

	rootCmd := &cobra.Command{
		Use:   "shortvol",
		Short: "Automated short-volatility options trading for NIFTY weeklies",
		Long: `shortvol runs automated short-volatility strategies on NIFTY weekly
options: an IV credit spread and an iron condor, driven by a live
option-chain scan against the India VIX.

Use 'shortvol run --strategy credit-spread' after logging in, or
'--mode paper' for a dry run against the simulated broker.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/shortvol-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addAuthCommands(rootCmd, app)
	addRunCommands(rootCmd, app)
	addJournalCommands(rootCmd, app)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
				return
			}
			output.Printf("shortvol %s\n", Version)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config
			if output.IsJSON() {
				return output.JSON(cfg)
			}

			output.Bold("Trading")
			output.Printf("  mode: %s  underlying: %s  capital: %.0f  lot: %d  max legs: %d\n",
				cfg.Trading.Mode, cfg.Trading.Underlying, cfg.Trading.Capital, cfg.Trading.LotSize, cfg.Trading.MaxLegs)
			output.Bold("Strategy")
			output.Printf("  target: %.0f  stop loss: %.0f  max rolls: %d  mismatch threshold: %.1f\n",
				cfg.Target(), cfg.StopLoss(), cfg.Strategy.MaxRolls, cfg.Strategy.IVMismatchThreshold)
			output.Printf("  decay trigger: %.2f  iv rank entry: %.0f  delta band: %.2f-%.2f  adjust delta: %.2f\n",
				cfg.Strategy.DecayTriggerPct, cfg.Strategy.IVRankEntry,
				cfg.Strategy.DeltaShortMin, cfg.Strategy.DeltaShortMax, cfg.Strategy.AdjustmentDelta)
			output.Bold("Scanner")
			output.Printf("  step: %.0f  strikes/side: %d  min premium: %.1f  r: %.3f  rescan: every %d ticks\n",
				cfg.Scanner.StrikeStep, cfg.Scanner.StrikesPerSide, cfg.Scanner.MinPremium,
				cfg.Scanner.RiskFreeRate, cfg.Scanner.RescanTicks)
			return nil
		},
	}
}
