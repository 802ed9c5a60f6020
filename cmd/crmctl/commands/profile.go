package commands

import (
	"github.com/spf13/cobra"

	"crm-dashboard/internal/domain"
	"crm-dashboard/internal/validation"
)

func newProfileCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your profile",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Show your profile",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				profile, err := a.client.Users.Profile(cmd.Context())
				if err != nil {
					return a.upstream(err)
				}
				return a.print(profile)
			},
		},
		newProfileUpdateCommand(a),
	)
	return cmd
}

func newProfileUpdateCommand(a *app) *cobra.Command {
	var in domain.UpdateUserProfile

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change profile fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if errs := validation.ValidateStruct(validation.NewProfileForm(in)); errs != nil {
				return errs
			}
			profile, err := a.client.Users.UpdateProfile(cmd.Context(), in)
			if err != nil {
				return a.upstream(err)
			}
			return a.print(profile)
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&in.Address, "address", "", "postal address")
	return cmd
}
