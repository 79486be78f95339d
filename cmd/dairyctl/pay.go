package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/doodhwala/billing"
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/internal/logger"
	"github.com/doodhwala/billing/payment"
	"github.com/doodhwala/billing/types"
)

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Record a customer payment",
	Long: `Record a payment against an invoice or as general credit. Any amount
above the invoice's outstanding balance is kept as advance credit on the
customer's ledger.`,
	Example: `  # Pay an invoice by UPI
  dairyctl pay --customer cust_01j0... --invoice inv_01j0... --amount 1800 --mode upi

  # Record cash received as advance
  dairyctl pay --customer cust_01j0... --amount 500 --mode cash --notes "paid at gate"`,
	RunE: runPay,
}

func init() {
	payCmd.Flags().String("customer", "", "Customer ID (required)")
	payCmd.Flags().String("invoice", "", "Invoice ID to settle")
	payCmd.Flags().String("amount", "", "Amount in major units, e.g. 199.50 (required)")
	payCmd.Flags().String("mode", string(payment.ModeCash), "Payment mode (cash, upi, bank_transfer, cheque, card, other)")
	payCmd.Flags().String("date", "", "Payment date (YYYY-MM-DD, default today)")
	payCmd.Flags().String("notes", "", "Free-form note")
	_ = payCmd.MarkFlagRequired("customer")
	_ = payCmd.MarkFlagRequired("amount")
	rootCmd.AddCommand(payCmd)
}

func runPay(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("pay")

	rawCustomer, _ := cmd.Flags().GetString("customer")
	rawInvoice, _ := cmd.Flags().GetString("invoice")
	rawAmount, _ := cmd.Flags().GetString("amount")
	mode, _ := cmd.Flags().GetString("mode")
	rawDate, _ := cmd.Flags().GetString("date")
	notes, _ := cmd.Flags().GetString("notes")

	customerID, err := id.ParseCustomerID(rawCustomer)
	if err != nil {
		return fmt.Errorf("--customer: %w", err)
	}
	var invID id.InvoiceID
	if rawInvoice != "" {
		if invID, err = id.ParseInvoiceID(rawInvoice); err != nil {
			return fmt.Errorf("--invoice: %w", err)
		}
	}
	amount, err := parseAmount(rawAmount, engine.Currency())
	if err != nil {
		return err
	}
	date, err := dateFlag(rawDate, types.Day(time.Now()))
	if err != nil {
		return err
	}

	p, err := engine.RecordPayment(cmd.Context(), billing.PaymentRequest{
		CustomerID: customerID,
		InvoiceID:  invID,
		Amount:     amount,
		Mode:       payment.Mode(mode),
		Date:       date,
		Notes:      notes,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("payment_id", p.ID.String()).
		Str("customer_id", p.CustomerID.String()).
		Str("amount", p.Amount.String()).
		Msg("Payment recorded")

	fmt.Printf("Payment %s: applied %s, advance %s\n", p.ID, p.AppliedAmount, p.ExcessAmount)
	if balance, err := engine.Balance(cmd.Context(), customerID); err == nil {
		fmt.Printf("Balance: %s\n", balance)
	}
	return nil
}
