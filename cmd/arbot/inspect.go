package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"arbot/internal/exchange"
	"arbot/internal/models"

	"github.com/spf13/cobra"
)

const recentClosingFlows = 10

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Показать балансы maker и taker.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			maker, taker, closeVenues, err := a.openVenues(ctx)
			if err != nil {
				return err
			}
			defer closeVenues()
			return printBalances(ctx, cmd.OutOrStdout(), maker, taker)
		},
	}
}

func printBalances(ctx context.Context, out io.Writer, venues ...exchange.Exchange) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VENUE\tSYMBOL\tCURRENCY\tTOTAL\tRESERVED\tAVAILABLE\tFEE %")
	for _, venue := range venues {
		bal, err := venue.Balance(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\tfiat\t%s\t%s\t%s\t%s\n", venue.Name(), venue.Symbol(),
			num(bal.Fiat.Total), num(bal.Fiat.Reserved), num(bal.Fiat.Available), num(bal.Fee))
		fmt.Fprintf(w, "%s\t%s\tcrypto\t%s\t%s\t%s\t%s\n", venue.Name(), venue.Symbol(),
			num(bal.Crypto.Total), num(bal.Crypto.Reserved), num(bal.Crypto.Available), num(bal.Fee))
	}
	return w.Flush()
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Показать активные потоки и открытые позиции.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			settings, err := st.Settings(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "hold: %t\n\n", settings.Hold)

			flows, err := st.ActiveOpeningFlows(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "OPENING FLOW\tSIDE\tPRICE\tVALUE\tSUGGESTED CLOSE\tSTATUS\tCREATED")
			for _, f := range flows {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", f.ID, f.Side, num(f.Price), num(f.ValueToUse),
					num(f.SuggestedClosingPrice), f.Status, f.CreatedAt.Format(time.RFC3339))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(out)
			w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "OPEN POSITION\tSIDE\tPRICE\tAMOUNT\tQTY\tOPENING FLOW\tCREATED")
			for _, side := range []models.OrderSide{models.OrderSideBuy, models.OrderSideSell} {
				positions, err := st.OpenPositions(ctx, side)
				if err != nil {
					return err
				}
				for _, p := range positions {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n", p.ID, p.Side, num(p.Price), num(p.Amount),
						num(p.Qty), p.OpeningFlowID, p.CreatedAt.Format(time.RFC3339))
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}

			closing, err := st.ClosingFlows(ctx, recentClosingFlows)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CLOSING FLOW\tSIDE\tDESIRED\tQTY\tDONE\tCRYPTO PROFIT\tFIAT PROFIT\tCREATED")
			for _, c := range closing {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\t%s\t%s\n", c.ID, c.Side, num(c.DesiredPrice), num(c.Qty),
					c.Done, num(c.CryptoProfit), num(c.FiatProfit), c.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func num(v float64) string {
	return fmt.Sprintf("%.8g", v)
}
