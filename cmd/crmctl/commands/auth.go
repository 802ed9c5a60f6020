package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"crm-dashboard/internal/domain"
	"crm-dashboard/internal/session"
	"crm-dashboard/internal/validation"
)

type sessionOutput struct {
	State string       `json:"state"`
	User  *domain.User `json:"user,omitempty"`
}

func newLoginCommand(a *app) *cobra.Command {
	var form validation.LoginForm

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if errs := validation.ValidateStruct(form); errs != nil {
				return errs
			}
			creds := form.Credentials()
			if res := a.coord.Login(cmd.Context(), creds.Email, creds.Password); !res.Success {
				return errors.New(res.Error)
			}
			return a.printSession(a.coord.Snapshot())
		},
	}

	cmd.Flags().StringVarP(&form.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&form.Password, "password", "p", "", "account password")
	return cmd
}

func newRegisterCommand(a *app) *cobra.Command {
	var form validation.RegisterForm

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if errs := validation.ValidateStruct(form); errs != nil {
				return errs
			}
			creds := form.Credentials()
			if res := a.coord.Register(cmd.Context(), creds.Email, creds.Password); !res.Success {
				return errors.New(res.Error)
			}
			return a.printSession(a.coord.Snapshot())
		},
	}

	cmd.Flags().StringVarP(&form.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&form.Password, "password", "p", "", "account password")
	cmd.Flags().StringVar(&form.ConfirmPassword, "confirm", "", "repeat the password")
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.coord.Logout(cmd.Context())
			return a.printSession(a.coord.Snapshot())
		},
	}
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap := a.coord.CheckAuth(cmd.Context())
			if !snap.IsAuthenticated {
				return ErrNotSignedIn
			}
			return a.printSession(snap)
		},
	}
}

func newRefreshCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			epoch := a.coord.Epoch()
			if a.coord.RefreshToken(cmd.Context()) {
				return a.print(map[string]bool{"success": true})
			}
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			a.coord.ForceLogout(cmd.Context(), epoch)
			return ErrNotSignedIn
		},
	}
}

func (a *app) printSession(snap session.Snapshot) error {
	return a.print(sessionOutput{State: snap.State.String(), User: snap.User})
}
