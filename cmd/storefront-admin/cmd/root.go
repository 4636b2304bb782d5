// Package cmd contains all CLI commands for storefront-admin.
package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/runevault/storefront-backend/internal/client"
	"github.com/runevault/storefront-backend/internal/fingerprint"
	"github.com/runevault/storefront-backend/pkg/logging"
)

var version = "dev"

var (
	// Global flags
	serverURL   string
	sessionFile string
	output      string
	verbose     bool
	maxFailures int
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "storefront-admin",
	Short: "Sign in to the storefront admin backend",
	Long: `storefront-admin signs an administrator in to the storefront backend.

Login is a three step handshake:
  1. A one-time key is issued and delivered to the administrator out of band
  2. The key is entered here and a six digit code is sent to the admin contact
  3. The code is entered here and a session bound to this device is saved

Examples:
  # Sign in
  storefront-admin login

  # Check the saved session
  storefront-admin status

  # Keep re-validating the session until it is revoked
  storefront-admin watch

Environment Variables:
  STOREFRONT_ADMIN_URL      Base URL of the backend (default: http://localhost:8080)
  STOREFRONT_ADMIN_SESSION  Session file (default: <user config dir>/storefront-admin/session)`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "url", "u", getEnvOrDefault("STOREFRONT_ADMIN_URL", "http://localhost:8080"), "Backend base URL")
	rootCmd.PersistentFlags().StringVar(&sessionFile, "session-file", os.Getenv("STOREFRONT_ADMIN_SESSION"), "Where the session token is kept")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log protocol steps to stderr")
	rootCmd.PersistentFlags().IntVar(&maxFailures, "max-failures", client.DefaultMaxFailures, "Failed steps before the login starts over")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// newOrchestrator wires the HTTP client, host fingerprint and token file
func newOrchestrator(opts ...client.Option) (*client.Orchestrator, *zap.Logger, error) {
	logger, err := logging.NewCLILogger(verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	path := sessionFile
	if path == "" {
		path, err = client.DefaultTokenPath()
		if err != nil {
			return nil, nil, err
		}
	}

	opts = append([]client.Option{client.WithMaxFailures(maxFailures)}, opts...)
	o := client.NewOrchestrator(
		client.NewHTTPClient(serverURL, 30*time.Second),
		fingerprint.NewHostEnvironment("storefront-admin/"+version),
		client.NewFileTokenStore(path),
		logger,
		opts...,
	)
	return o, logger, nil
}

var stdin = bufio.NewReader(os.Stdin)

// prompt reads a line, hiding the input when stdin is a terminal
func prompt(label string, hidden bool) (string, error) {
	fmt.Fprint(os.Stderr, label)

	fd := int(os.Stdin.Fd())
	if hidden && term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// printJSON writes v as indented JSON
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
