package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/runevault/storefront-backend/internal/client"
)

var errCancelled = errors.New("login cancelled")

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a one-time key and a two-factor code",
	Long: `Request a one-time key, then enter the key and the two-factor code as
they arrive. Submit an empty line to start over. At the code prompt, enter
"resend" to get a new code.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		o, _, err := newOrchestrator()
		if err != nil {
			return err
		}

		if o.State().Step == client.StepAuthenticated {
			status, err := o.Validate(ctx)
			if err == nil {
				fmt.Printf("Already logged in, session expires in %s.\n", status.Remaining.Round(time.Minute))
				return nil
			}
			var apiErr *client.APIError
			if !errors.As(err, &apiErr) || !apiErr.Unauthorized() {
				return fmt.Errorf("failed to check saved session: %w", err)
			}
		}

		for {
			err := login(ctx, o)
			switch {
			case err == nil:
				fmt.Println("Logged in.")
				return nil
			case errors.Is(err, errCancelled):
				fmt.Fprintln(os.Stderr, "Starting over.")
				o.Back()
			default:
				return err
			}
		}
	},
}

func login(ctx context.Context, o *client.Orchestrator) error {
	if err := o.RequestKey(ctx); err != nil {
		return fmt.Errorf("failed to request key: %w", err)
	}
	st := o.State()
	fmt.Fprintf(os.Stderr, "A one-time key was sent to the administrator. It expires at %s.\n",
		st.KeyExpiresAt.Local().Format(time.Kitchen))

	for o.State().Step == client.StepVerification {
		key, err := prompt("Key: ", true)
		if err != nil {
			return err
		}
		if key == "" {
			return errCancelled
		}
		if err := o.SubmitKey(ctx, key); err != nil {
			if errors.Is(err, client.ErrTooManyAttempts) {
				return err
			}
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}

	st = o.State()
	fmt.Fprintf(os.Stderr, "A verification code was sent by %s to %s.\n", st.ContactMethod, st.ContactValue)

	for o.State().Step == client.StepTwoFactor {
		code, err := prompt("Code: ", true)
		if err != nil {
			return err
		}
		switch code {
		case "":
			return errCancelled
		case "resend":
			err = o.ResendCode(ctx)
			if err == nil {
				fmt.Fprintln(os.Stderr, "A new code was sent.")
			}
		default:
			err = o.SubmitCode(ctx, code)
		}
		if err != nil {
			if errors.Is(err, client.ErrTooManyAttempts) {
				return err
			}
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}

	if o.State().Step != client.StepAuthenticated {
		return errors.New("login did not complete")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
