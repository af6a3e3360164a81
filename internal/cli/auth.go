package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// addAuthCommands adds the session management commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLoginCmd(app))
	rootCmd.AddCommand(newLogoutCmd(app))
	rootCmd.AddCommand(newAuthStatusCmd(app))
}

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to Zerodha Kite Connect",
		Long: `Login to Zerodha Kite Connect.

Prints the OAuth login URL; complete the browser flow yourself and pass
the resulting request token back with --token to finish the session.`,
		Example: `  shortvol login
  shortvol login --token=<request-token>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Zerodha == nil {
				output.Error("Broker not configured. Set credentials in credentials.toml or ZERODHA_API_KEY.")
				return nil
			}

			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				output.Info("Open this URL in a browser and authorize:")
				output.Println(app.Zerodha.GetLoginURL())
				output.Dim("Then run: shortvol login --token=<request-token>")
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := app.Zerodha.CompleteLogin(ctx, token); err != nil {
				output.Error("Login failed: %v", err)
				return err
			}
			output.Success("Logged in. Session persisted until next market day 6 AM.")
			return nil
		},
	}
	cmd.Flags().String("token", "", "request token from the OAuth redirect")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Zerodha == nil {
				output.Warning("Broker not configured; nothing to do.")
				return nil
			}
			if err := app.Zerodha.Logout(); err != nil {
				return err
			}
			output.Success("Logged out.")
			return nil
		},
	}
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			authenticated := app.Zerodha != nil && app.Zerodha.IsAuthenticated()
			if output.IsJSON() {
				return output.JSON(map[string]bool{"authenticated": authenticated})
			}
			if authenticated {
				output.Success("Authenticated.")
			} else {
				output.Warning("Not authenticated. Run 'shortvol login'.")
			}
			return nil
		},
	}
}
