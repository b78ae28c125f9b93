package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kursadbilgin/plusserver-sms/internal/queue"
	"github.com/kursadbilgin/plusserver-sms/plusserver"
	"github.com/spf13/cobra"
)

type enqueueFlags struct {
	requestID     string
	correlationID string
	orig          string
	project       string
	maxParts      int
	unregistered  bool
	debug         bool
}

func newEnqueueCommand(root *rootOptions) *cobra.Command {
	flags := &enqueueFlags{}

	cmd := &cobra.Command{
		Use:   "enqueue <recipient> <body>",
		Short: "Queue an SMS for the dispatch worker",
		Long: `Publish a send request to the sms.send queue. The worker sends it,
retries gateway outages and tracks the delivery state. Re-running with
the same --request-id does not send twice.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipient, err := plusserver.NormalizeRecipient(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q", err, args[0])
			}

			msg := queue.SendRequest{
				RequestID:     flags.requestID,
				CorrelationID: flags.correlationID,
				Recipient:     recipient,
				Body:          args[1],
				Orig:          flags.orig,
				Project:       flags.project,
				MaxParts:      flags.maxParts,
				Debug:         flags.debug,
			}
			msg.SetRegistered(!flags.unregistered)
			if msg.RequestID == "" {
				msg.RequestID = uuid.NewString()
			}
			if msg.CorrelationID == "" {
				msg.CorrelationID = msg.RequestID
			}
			if err := msg.Validate(); err != nil {
				return err
			}

			if root.deps.Publisher == nil {
				return fmt.Errorf("publisher is not configured")
			}
			publisher, err := root.deps.Publisher()
			if err != nil {
				return err
			}
			defer publisher.Close() //nolint:errcheck

			if err := publisher.Publish(cmd.Context(), queue.SendQueue, msg); err != nil {
				return err
			}

			result := enqueueResult{RequestID: msg.RequestID, Queue: queue.SendQueue}
			return render(cmd.OutOrStdout(), root.json, result, msg.RequestID)
		},
	}

	cmd.Flags().StringVar(&flags.requestID, "request-id", "", "Idempotency key (generated when empty)")
	cmd.Flags().StringVar(&flags.correlationID, "correlation-id", "", "Correlation id for logs (defaults to the request id)")
	cmd.Flags().StringVar(&flags.orig, "orig", "", "Sender name or number")
	cmd.Flags().StringVar(&flags.project, "project", "", "Project name reported to the gateway")
	cmd.Flags().IntVar(&flags.maxParts, "max-parts", 0, "Maximum number of SMS parts")
	cmd.Flags().BoolVar(&flags.unregistered, "unregistered", false, "Send without registered delivery")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Ask the gateway not to deliver the message")

	return cmd
}
