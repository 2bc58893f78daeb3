package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	app "github.com/okian/tinymerit/internal/app"
	"github.com/okian/tinymerit/internal/domain/enrich"
	"github.com/okian/tinymerit/internal/domain/history"
	"github.com/okian/tinymerit/internal/domain/payee"
	"github.com/spf13/cobra"
)

func newSearchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search GitHub users and repositories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.svc.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, u := range res.Users {
				fmt.Fprintf(w, "user\t%d\t%s\t%s\n", u.ID, u.Login, u.Name)
			}
			for _, r := range res.Repos {
				fmt.Fprintf(w, "repo\t%d\t%s\t%d stars\n", r.ID, r.FullName, r.Stars)
			}
			return w.Flush()
		},
	}
}

// parsePayee reads "u:<id>:<amount>" or "r:<id>:<amount>".
func parsePayee(arg string) (payee.Item, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 3 {
		return payee.Item{}, fmt.Errorf("payee %q: want kind:id:amount", arg)
	}
	kind, err := payee.ParseKind(parts[0])
	if err != nil {
		return payee.Item{}, err
	}
	amount, err := payee.ParseAmount(parts[2])
	if err != nil {
		return payee.Item{}, err
	}
	if parts[1] == "" {
		return payee.Item{}, fmt.Errorf("payee %q: missing id", arg)
	}
	return payee.Item{Kind: kind, ID: parts[1], Amount: amount}, nil
}

func newCheckoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <u|r>:<id>:<amount>...",
		Short: "Build a checkout URL for the given payees",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.session()
			if err != nil {
				return err
			}
			for _, arg := range args {
				item, err := parsePayee(arg)
				if err != nil {
					return err
				}
				if _, err := sess.UpdateCart(func(l payee.List) (payee.List, error) {
					return l.Add(item), nil
				}); err != nil {
					return err
				}
			}
			res, err := c.svc.Checkout(cmd.Context(), sess)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total: %s (%s)\n%s\n", sess.Cart().Total().StringFixed(2), res.Path, res.URL)
			return nil
		},
	}
}

func newHistoryCmd(c *cli) *cobra.Command {
	var (
		page     int
		noEnrich bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the selected account's balance and sent payments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := c.session()
			if err != nil {
				return err
			}
			res, err := c.svc.History(cmd.Context(), sess, app.HistoryRequest{Page: page, Enrich: !noEnrich})
			if res.Error != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", res.Error.Title, res.Error.Message)
				if res.Error.ShowHint {
					fmt.Fprintln(cmd.ErrOrStderr(), "hint: merit-cli apikey set <key>")
				}
			}
			if err != nil {
				return err
			}
			printHistory(cmd, res)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().BoolVar(&noEnrich, "no-enrich", false, "skip GitHub lookups for recipients")
	return cmd
}

func printHistory(cmd *cobra.Command, res app.HistoryResult) {
	out := cmd.OutOrStdout()
	snap := res.Snapshot
	if snap.Balance != nil {
		fmt.Fprintf(out, "balance: %s\n", snap.Balance.Formatted)
	}
	from, to := snap.Page.Range()
	fmt.Fprintf(out, "payments %d-%d of %d (page %d)\n", from, to, snap.Page.TotalCount, snap.Page.Number)

	names := make(map[string]string, len(res.Rows))
	for _, row := range res.Rows {
		names[string(row.Record.Type)+":"+row.Record.SubjectID()] = row.DisplayName
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, g := range res.Groups {
		label := "single payments"
		if g.Grouped() {
			label = "group " + g.ShortID()
		}
		fmt.Fprintf(w, "%s\t\t$%s\n", label, g.TotalDisplay())
		for _, rec := range g.Records {
			name, ok := names[string(rec.Type)+":"+rec.SubjectID()]
			if !ok {
				name = enrich.FallbackName(rec)
			}
			fmt.Fprintf(w, "  %s\t%s\t$%s\n",
				rec.Time().Format(time.DateTime), name,
				history.MicroToDollars(rec.Amount.Raw.String()).StringFixed(2))
		}
	}
	_ = w.Flush()
}

func newAccountCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Show or change the sending account",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the selected account",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				acct, ok := c.svc.Store().Account()
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "no account selected")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d)\n", acct.Login, acct.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <login>",
			Short: "Select the GitHub user payments are sent from",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				acct, err := c.svc.AccountByLogin(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := c.svc.Store().SetAccount(cmd.Context(), acct); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "account set to %s (%d)\n", acct.Login, acct.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Forget the selected account",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.svc.Store().ClearAccount(cmd.Context())
			},
		},
	)
	return cmd
}

func newAPIKeyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the saved payments API key",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <key>",
			Short: "Save the API key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.svc.Store().SetAPIKey(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the saved API key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.svc.Store().ClearAPIKey(cmd.Context())
			},
		},
	)
	return cmd
}
