package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/poller"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// payCmd buys a course against a running API and waits for payment, the way
// the payment page does.
func payCmd() *cobra.Command {
	var (
		apiURL      string
		token       string
		productID   string
		amount      int64
		description string
	)
	defaults := config.DefaultCheckoutConfig()
	opts := poller.OptionsFrom(defaults)

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Create an invoice and wait until it is paid",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("COURSEPAY_TOKEN")
			}
			log, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			opts.OnState = func(p poller.Progress) {
				switch p.State {
				case poller.StateAwaitingPayment:
					fmt.Fprintf(out, "invoice %s created, waiting for payment\n", p.Invoice.InvoiceID)
					if p.Invoice.DeepLink != "" {
						fmt.Fprintf(out, "pay at %s\n", p.Invoice.DeepLink)
					}
				default:
					fmt.Fprintf(out, "%s (%s)\n", p.State, p.Elapsed.Round(time.Second))
				}
			}

			backend := poller.NewHTTPCheckout(apiURL, token, 15*time.Second)
			p := poller.New(backend, clock.SystemClock{}, log, opts)
			outcome, err := p.Run(ctx, checkoutdomain.CreateInvoiceRequest{
				ProductID:   productID,
				Amount:      amount,
				Description: description,
			})
			if err != nil {
				return err
			}
			if outcome.State == poller.StateTimedOut {
				return fmt.Errorf("no payment after %s; run again to keep waiting", opts.Budget)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "Checkout API base URL")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token (default $COURSEPAY_TOKEN)")
	cmd.Flags().StringVar(&productID, "product", "", "Course id")
	cmd.Flags().Int64Var(&amount, "amount", 0, "Amount to pay")
	cmd.Flags().StringVar(&description, "description", "", "Invoice description")
	cmd.Flags().DurationVar(&opts.Interval, "interval", defaults.PollInterval, "Poll interval")
	cmd.Flags().DurationVar(&opts.Budget, "budget", defaults.PollBudget, "How long to wait for payment")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}
