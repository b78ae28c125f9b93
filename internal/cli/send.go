package cli

import (
	"time"

	"github.com/kursadbilgin/plusserver-sms/plusserver"
	"github.com/spf13/cobra"
)

// callFlags are the per-call options shared by send, state and wait.
// Only flags set on the command line become options, so the configured
// defaults stay in effect otherwise.
type callFlags struct {
	orig         string
	project      string
	encoding     string
	maxParts     int
	timeout      time.Duration
	deadline     time.Duration
	unregistered bool
	debug        bool
	failSilently bool
	wait         bool
}

func (f *callFlags) registerTransport(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Timeout of each gateway request")
	cmd.Flags().BoolVar(&f.failSilently, "fail-silently", false, "Print none instead of failing on gateway errors")
}

func (f *callFlags) registerWait(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.deadline, "deadline", 0, "Give up waiting after this long (0 waits forever)")
}

func (f *callFlags) options(cmd *cobra.Command) []plusserver.Option {
	var opts []plusserver.Option
	changed := cmd.Flags().Changed

	if changed("orig") {
		opts = append(opts, plusserver.WithOrig(f.orig))
	}
	if changed("project") {
		opts = append(opts, plusserver.WithProject(f.project))
	}
	if changed("encoding") {
		opts = append(opts, plusserver.WithEncoding(f.encoding))
	}
	if changed("max-parts") {
		opts = append(opts, plusserver.WithMaxParts(f.maxParts))
	}
	if changed("timeout") {
		opts = append(opts, plusserver.WithTimeout(f.timeout))
	}
	if changed("deadline") {
		opts = append(opts, plusserver.WithDeadline(f.deadline))
	}
	if changed("unregistered") {
		opts = append(opts, plusserver.WithRegisteredDelivery(!f.unregistered))
	}
	if changed("debug") {
		opts = append(opts, plusserver.WithDebug(f.debug))
	}
	if changed("fail-silently") {
		opts = append(opts, plusserver.WithFailSilently(f.failSilently))
	}
	return opts
}

func newSendCommand(root *rootOptions) *cobra.Command {
	flags := &callFlags{}

	cmd := &cobra.Command{
		Use:   "send <recipient> <body>",
		Short: "Send an SMS",
		Long: `Send an SMS and print the handle id, "accepted" for messages without
registered delivery, or "none" when --fail-silently swallowed an error.
With --wait the command polls until the message has arrived.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gateway, err := root.gateway()
			if err != nil {
				return err
			}

			opts := flags.options(cmd)
			message := plusserver.NewMessage(args[0], args[1], opts...)
			outcome, err := gateway.Send(cmd.Context(), message)
			if err != nil {
				return err
			}

			if flags.wait && outcome.Kind == plusserver.OutcomeHandle {
				if _, err := gateway.CheckState(cmd.Context(), message, plusserver.WithWait(true)); err != nil {
					return err
				}
			}

			result := newSendResult(outcome, message.State())
			return render(cmd.OutOrStdout(), root.json, result, result.text())
		},
	}

	cmd.Flags().StringVar(&flags.orig, "orig", "", "Sender name or number")
	cmd.Flags().StringVar(&flags.project, "project", "", "Project name reported to the gateway")
	cmd.Flags().StringVar(&flags.encoding, "encoding", "", "Text encoding: iso, gsm, utf-8, ucs2")
	cmd.Flags().IntVar(&flags.maxParts, "max-parts", 0, "Maximum number of SMS parts")
	cmd.Flags().BoolVar(&flags.unregistered, "unregistered", false, "Send without registered delivery (no handle id)")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Ask the gateway not to deliver the message")
	cmd.Flags().BoolVar(&flags.wait, "wait", false, "Wait until the message has arrived")
	flags.registerTransport(cmd)
	flags.registerWait(cmd)

	return cmd
}
