package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errReconcileTarget = errors.New("exactly one of --user-id or --all is required")

func newReconcileCmd() *cobra.Command {
	var (
		userID uint64
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Downgrade lapsed paid plans",
		Long: "Reconcile compares each paid user's plan with their payments and " +
			"downgrades plans whose backing payment is missing or expired.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (userID == 0) == !all {
				return errReconcileTarget
			}
			a, err := bootstrap(cmd.Context(), "reconcile")
			if err != nil {
				return err
			}
			defer a.close()
			subs, err := a.subscriptions(a.publisher())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if all {
				n, err := subs.ReconcileAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "downgraded %d user(s)\n", n)
				return nil
			}
			res, err := subs.Reconcile(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if res.Change != nil {
				fmt.Fprintf(out, "user %d: %s -> %s (%s)\n", userID, res.Change.OldPlan, res.Change.NewPlan, res.Change.Reason)
			} else {
				fmt.Fprintf(out, "user %d: unchanged, plan %s\n", userID, res.Entitlement.Plan)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&userID, "user-id", 0, "reconcile a single user")
	cmd.Flags().BoolVar(&all, "all", false, "reconcile every user on a paid plan")
	return cmd
}
