package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"crm-dashboard/internal/domain"
	"crm-dashboard/internal/validation"
)

// newDealsCommand groups the deal subcommands
func newDealsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deals",
		Aliases: []string{"d"},
		Short:   "List and edit deals",
		Args:    cobra.NoArgs,
	}

	cmd.AddCommand(
		newDealsListCommand(a),
		newDealsGetCommand(a),
		newDealsCreateCommand(a),
		newDealsUpdateCommand(a),
		newDealsDeleteCommand(a),
		newDealsRepeatCommand(a),
	)
	return cmd
}

func newDealsListCommand(a *app) *cobra.Command {
	var start, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of deals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := a.client.Deals.List(cmd.Context(), start, limit)
			if err != nil {
				return a.upstream(err)
			}
			return a.print(page)
		},
	}

	cmd.Flags().IntVar(&start, "start", 0, "offset of the first deal")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	return cmd
}

func newDealsGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			deal, err := a.client.Deals.Get(cmd.Context(), id)
			if err != nil {
				return a.upstream(err)
			}
			return a.print(deal)
		},
	}
}

// dealFlags binds the editable deal fields
type dealFlags struct {
	title       string
	stage       string
	currency    string
	comments    string
	closeDate   string
	opportunity float64
}

func (f *dealFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "deal title")
	cmd.Flags().StringVar(&f.stage, "stage", "", "pipeline stage id")
	cmd.Flags().StringVar(&f.currency, "currency", "", "three letter currency code")
	cmd.Flags().StringVar(&f.comments, "comments", "", "free-form comments")
	cmd.Flags().StringVar(&f.closeDate, "close-date", "", "expected close date")
	cmd.Flags().Float64Var(&f.opportunity, "opportunity", 0, "expected amount")
}

// deal builds the request body from the flags the user actually set
func (f *dealFlags) deal(cmd *cobra.Command) domain.CreateDeal {
	d := domain.CreateDeal{
		Title:      f.title,
		StageID:    f.stage,
		CurrencyID: f.currency,
		Comments:   f.comments,
		CloseDate:  f.closeDate,
	}
	if cmd.Flags().Changed("opportunity") {
		amount := f.opportunity
		d.Opportunity = &amount
	}
	return d
}

func newDealsCreateCommand(a *app) *cobra.Command {
	flags := &dealFlags{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a deal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := flags.deal(cmd)
			if errs := validation.ValidateStruct(validation.NewDealForm(in)); errs != nil {
				return errs
			}
			created, err := a.client.Deals.Create(cmd.Context(), in)
			if err != nil {
				return a.upstream(err)
			}
			return a.print(created)
		},
	}

	flags.bind(cmd)
	return cmd
}

func newDealsUpdateCommand(a *app) *cobra.Command {
	flags := &dealFlags{}

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of a deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			in := flags.deal(cmd)
			if errs := validation.ValidateStruct(validation.NewDealPatchForm(in)); errs != nil {
				return errs
			}
			deal, err := a.client.Deals.Update(cmd.Context(), id, in)
			if err != nil {
				return a.upstream(err)
			}
			return a.print(deal)
		},
	}

	flags.bind(cmd)
	return cmd
}

func newDealsDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			if err := a.client.Deals.Delete(cmd.Context(), id); err != nil {
				return a.upstream(err)
			}
			return a.print(map[string]int{"deleted": id})
		},
	}
}

func newDealsRepeatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repeat ID",
		Short: "Create a copy of a deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			created, err := a.client.Deals.Repeat(cmd.Context(), id)
			if err != nil {
				return a.upstream(err)
			}
			return a.print(created)
		},
	}
}

func parseDealID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid deal id %q", s)
	}
	return id, nil
}
