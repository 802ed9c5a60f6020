// Package commands implements crmctl, a terminal client for the CRM API.
// Tokens persist in a cookie file shared by every crmctl process of the
// user, and expired access tokens are refreshed the same way the dashboard
// refreshes them.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"crm-dashboard/internal/apiclient"
	"crm-dashboard/internal/config"
	"crm-dashboard/internal/observability"
	"crm-dashboard/internal/session"
	"crm-dashboard/internal/tokenstore"
)

// ErrNotSignedIn is returned when a command needs a session and there is none
var ErrNotSignedIn = errors.New("not signed in, run `crmctl login`")

type options struct {
	apiURL    string
	tokenFile string
	verbose   bool
}

// app is what every subcommand runs against
type app struct {
	coord  *session.Coordinator
	client *apiclient.Client
	out    io.Writer
	// ended is set once the coordinator navigates to the login page
	ended bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &options{}
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "crmctl",
		Short:        "Work with CRM deals and your profile from the terminal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd, opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "CRM API base URL (defaults to API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&opts.tokenFile, "token-file", "", "cookie file holding the session (defaults to TOKEN_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log requests to stderr")

	rootCmd.AddCommand(
		newLoginCommand(a),
		newRegisterCommand(a),
		newLogoutCommand(a),
		newWhoamiCommand(a),
		newRefreshCommand(a),
		newDealsCommand(a),
		newProfileCommand(a),
	)

	return rootCmd
}

func (a *app) init(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.apiURL != "" {
		cfg.APIBaseURL = opts.apiURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if opts.tokenFile != "" {
		cfg.TokenFile = opts.tokenFile
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	slog.SetDefault(observability.NewLogger(cmd.ErrOrStderr(), level, "text"))

	store := tokenstore.NewClientStore(cfg.TokenFile, cfg.CookieOptions())
	nav := session.NavigatorFunc(func(path string) {
		if path == session.LoginPath {
			a.ended = true
		}
	})

	coord, client, err := session.Wire(cfg.APIClient("crmctl"), store, nav, apiclient.NewBreaker("crm-api", http.DefaultTransport, apiclient.BreakerSettings{}))
	if err != nil {
		return err
	}

	a.coord, a.client, a.out = coord, client, cmd.OutOrStdout()
	return nil
}

// upstream turns a failed API call into the error shown to the user
func (a *app) upstream(err error) error {
	if errors.Is(err, apiclient.ErrUnauthorized) && a.ended {
		return ErrNotSignedIn
	}
	if msg := apiclient.Message(err); msg != "" {
		return errors.New(msg)
	}
	return err
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
