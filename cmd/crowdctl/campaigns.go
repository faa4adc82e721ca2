package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
)

func newCampaignsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "campaigns",
		Aliases: []string{"campaign"},
		Short:   "Inspect campaigns",
	}

	var state string
	list := &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *database) error {
				all, err := db.campaigns.List(ctx)
				if err != nil {
					return err
				}
				rows := campaignRows(all, domain.CampaignState(state), time.Now())
				if len(rows) == 1 {
					info(cmd.OutOrStdout()).Println("no campaigns")
					return nil
				}
				return renderTable(cmd.OutOrStdout(), rows)
			})
		},
	}
	list.Flags().StringVar(&state, "state", "", "filter by state (active, ended, disbursed)")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one campaign with its donations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid campaign id %q", args[0])
			}
			return withDatabase(cmd, func(ctx context.Context, db *database) error {
				c, err := db.campaigns.Get(ctx, id)
				if err != nil {
					return err
				}
				donations, err := db.campaigns.ListDonations(ctx, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if err := renderTable(out, campaignSummary(*c, time.Now())); err != nil {
					return err
				}
				if len(donations) == 0 {
					info(out).Println("no donations")
					return nil
				}
				return renderTable(out, donationRows(donations))
			})
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func campaignRows(list []domain.Campaign, state domain.CampaignState, now time.Time) pterm.TableData {
	rows := pterm.TableData{{"ID", "Title", "State", "Raised", "Target", "Progress", "Donors", "Deadline"}}
	for _, c := range list {
		if state != "" && c.State() != state {
			continue
		}
		rows = append(rows, []string{
			strconv.FormatUint(c.ID, 10),
			c.Title,
			string(c.State()),
			c.RaisedAmount.String(),
			c.TargetAmount.String(),
			count(ledger.PercentOf(c.RaisedAmount, c.TargetAmount)) + "%",
			count(c.DonorCount),
			deadlineLabel(c.Deadline, now),
		})
	}
	return rows
}

func campaignSummary(c domain.Campaign, now time.Time) pterm.TableData {
	return pterm.TableData{
		{"Field", "Value"},
		{"ID", strconv.FormatUint(c.ID, 10)},
		{"Title", c.Title},
		{"State", string(c.State())},
		{"Creator", c.Creator.Hex()},
		{"Beneficiary", c.Beneficiary.Hex()},
		{"Target", c.TargetAmount.String()},
		{"Raised", c.RaisedAmount.String()},
		{"Refunded", c.RefundedAmount.String()},
		{"Disbursed", c.DisbursedAmount.String()},
		{"In custody", c.Custody().String()},
		{"Donors", count(c.DonorCount)},
		{"Donations", count(c.DonationCount)},
		{"Goal reached", strconv.FormatBool(c.GoalReached)},
		{"Deadline", deadlineLabel(c.Deadline, now)},
	}
}

func donationRows(list []domain.Donation) pterm.TableData {
	rows := pterm.TableData{{"Donor", "Amount", "Tx", "Time"}}
	for _, d := range list {
		rows = append(rows, []string{d.Donor.Hex(), d.Amount.String(), d.TxRef, d.Timestamp.UTC().Format(time.RFC3339)})
	}
	return rows
}

func deadlineLabel(deadline, now time.Time) string {
	stamp := deadline.UTC().Format(time.RFC3339)
	if !now.Before(deadline) {
		return stamp + " (passed)"
	}
	return stamp + " (in " + deadline.Sub(now).Truncate(time.Minute).String() + ")"
}
