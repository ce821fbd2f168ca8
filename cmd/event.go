package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/core/events"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Payment event commands",
	Long:  `Inspect and re-deliver payment events to the order service.`,
}

var replayEventCmd = &cobra.Command{
	Use:   "replay [transaction-id]",
	Short: "Re-send the final status of a payment to the order service",
	Long:  `Re-publish payment.approved or payment.failed for a settled transaction, for when the order hand-off was lost.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := replayEvent(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Replay failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func replayEvent(transactionID string) error {
	ctx := context.Background()
	app, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	tx, err := app.Repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return err
	}

	amount := tx.Amount.StringFixed(2)
	at := tx.UpdatedAt
	var ev events.Event
	switch tx.Status {
	case payment.StatusApproved:
		ev = events.NewPaymentApprovedEvent(tx.TransactionID, tx.OrderID, string(tx.PaymentMethod), amount, at)
	case payment.StatusFailed, payment.StatusCancelled:
		reason := ""
		if tx.FailureReason != nil {
			reason = *tx.FailureReason
		}
		ev = events.NewPaymentFailedEvent(tx.TransactionID, tx.OrderID, string(tx.PaymentMethod), amount, string(tx.Status), reason, at)
	default:
		return fmt.Errorf("transaction %s is still %s, nothing to replay", transactionID, tx.Status)
	}

	app.Logger.Info("replaying payment event", "event_type", ev.EventType(), "transaction_id", transactionID)
	if err := app.Bus.PublishSync(ctx, ev); err != nil {
		return err
	}
	app.Logger.Info("payment event delivered", "transaction_id", transactionID)
	return nil
}

func init() {
	eventCmd.AddCommand(replayEventCmd)
	rootCmd.AddCommand(eventCmd)
}
