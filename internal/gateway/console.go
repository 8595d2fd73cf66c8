package gateway

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/payment"
)

// Console is a payment.Gateway for terminals. It prints where to pay and
// reads the outcome typed by the applicant:
//
//	paid <transaction-id> [signature]
//	failed
//	(empty line or "cancel")
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsole reads outcomes from in and writes prompts to out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// Invoke blocks until a line is read and reports it.
func (c *Console) Invoke(ctx context.Context, co payment.Checkout, report payment.Reporter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o := co.Order
	fmt.Fprintf(c.out, "Application fee for %s: %d.%02d %s (order %s)\n", o.ApplicationID, o.Amount/100, o.Amount%100, o.Currency, o.OrderID)
	if o.CheckoutURL != "" {
		fmt.Fprintf(c.out, "Pay at: %s\n", o.CheckoutURL)
	}
	fmt.Fprint(c.out, "Type 'paid <transaction-id>' once paid, 'failed' if the payment failed, or press enter to cancel: ")

	line, err := c.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read outcome: %w", err)
	}
	outcome, ids := parseOutcome(line)
	report(outcome, ids)
	return nil
}

func parseOutcome(line string) (model.Outcome, model.Identifiers) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return model.OutcomeDismissed, model.Identifiers{}
	}
	switch strings.ToLower(fields[0]) {
	case "paid", "success":
		var ids model.Identifiers
		if len(fields) > 1 {
			ids.PaymentID = fields[1]
		}
		if len(fields) > 2 {
			ids.Signature = fields[2]
		}
		return model.OutcomeSuccess, ids
	case "failed", "failure":
		return model.OutcomeFailure, model.Identifiers{}
	}
	return model.OutcomeDismissed, model.Identifiers{}
}

var _ payment.Gateway = (*Console)(nil)
