package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/runevault/storefront-backend/internal/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the saved session with the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, _, err := newOrchestrator()
		if err != nil {
			return err
		}

		status, err := o.Validate(cmd.Context())
		if err != nil {
			return fmt.Errorf("not logged in: %w", err)
		}

		if output == "json" {
			return printJSON(map[string]any{
				"valid":             true,
				"expires_at":        status.ExpiresAt,
				"remaining_seconds": int64(status.Remaining / time.Second),
				"fingerprint":       o.Fingerprint(),
			})
		}
		fmt.Printf("Logged in. Session expires at %s (in %s).\n",
			status.ExpiresAt.Local().Format(time.RFC1123), status.Remaining.Round(time.Minute))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the session and forget it locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		o, _, err := newOrchestrator()
		if err != nil {
			return err
		}
		if err := o.Logout(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Server logout failed, local session removed: %v\n", err)
			return nil
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-validate the session periodically until it ends",
	Long: `Re-validate the saved session every interval and whenever the process
receives SIGUSR1 or SIGCONT (e.g. after resume). Exits when the server rejects
the session. Network errors are reported and the session is kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ended := make(chan string, 1)
		o, logger, err := newOrchestrator(client.WithLogoutHandler(func(reason string) {
			select {
			case ended <- reason:
			default:
			}
		}))
		if err != nil {
			return err
		}

		monitor := client.NewMonitor(o, watchInterval, logger)
		if !monitor.Check() {
			return fmt.Errorf("not logged in")
		}
		monitor.Start()
		defer monitor.Stop()

		wake := make(chan os.Signal, 1)
		signal.Notify(wake, syscall.SIGUSR1, syscall.SIGCONT)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(wake)
		defer signal.Stop(quit)

		fmt.Fprintf(os.Stderr, "Watching session every %s. Press Ctrl+C to stop.\n", watchInterval)
		for {
			select {
			case <-wake:
				logger.Debug("Wake signal received")
				monitor.Wake()
			case reason := <-ended:
				fmt.Printf("Session ended: %s.\n", reason)
				return nil
			case <-quit:
				return nil
			}
		}
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", client.DefaultMonitorInterval, "Re-validation interval")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(watchCmd)
}
