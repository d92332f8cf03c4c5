package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scheduled_payments/internal/domain/money"
	"scheduled_payments/internal/pkg/utils"
)

type previewOptions struct {
	amount     string
	executions uint64
	feeBps     uint32
	decimals   int32
	symbol     string
}

func newPreviewCmd() *cobra.Command {
	o := &previewOptions{}
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Compute the funding cost of a schedule offline",
		Example: `
scheduler preview --amount 0.01 --executions 4
scheduler preview --amount 1 --executions 12 --fee-bps 75
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := money.ParseUnits(o.amount, o.decimals)
			if err != nil {
				return err
			}
			p, err := money.PreviewCost(amount, o.executions, o.feeBps)
			if err != nil {
				return err
			}
			dec := uint8(o.decimals)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Principal: %s %s\n", utils.FormatBigInt(p.Principal, dec), o.symbol)
			fmt.Fprintf(out, "Fee (%d bps): %s %s\n", p.FeeRateBps, utils.FormatBigInt(p.Fee, dec), o.symbol)
			fmt.Fprintf(out, "Total: %s %s\n", utils.FormatBigInt(p.Total, dec), o.symbol)
			return nil
		},
	}
	cmd.Flags().StringVar(&o.amount, "amount", "", "amount per execution in native units")
	cmd.Flags().Uint64Var(&o.executions, "executions", 1, "number of executions")
	cmd.Flags().Uint32Var(&o.feeBps, "fee-bps", 50, "ledger fee rate in basis points")
	cmd.Flags().Int32Var(&o.decimals, "decimals", 18, "decimals of the native unit")
	cmd.Flags().StringVar(&o.symbol, "symbol", "ETH", "native unit symbol")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
