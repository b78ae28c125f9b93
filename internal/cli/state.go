package cli

import (
	"github.com/kursadbilgin/plusserver-sms/plusserver"
	"github.com/spf13/cobra"
)

func newStateCommand(root *rootOptions) *cobra.Command {
	flags := &callFlags{}

	cmd := &cobra.Command{
		Use:   "state <handle>",
		Short: "Print the delivery state of a sent SMS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gateway, err := root.gateway()
			if err != nil {
				return err
			}

			opts := flags.options(cmd)
			if flags.wait {
				opts = append(opts, plusserver.WithWait(true))
			}
			st, err := gateway.CheckSMSState(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), root.json, stateResult{HandleID: args[0], State: st.String()}, stateText(st))
		},
	}

	cmd.Flags().BoolVar(&flags.wait, "wait", false, "Poll until the message has arrived")
	flags.registerTransport(cmd)
	flags.registerWait(cmd)

	return cmd
}

func newWaitCommand(root *rootOptions) *cobra.Command {
	flags := &callFlags{}

	cmd := &cobra.Command{
		Use:   "wait <handle>",
		Short: "Poll until a sent SMS has arrived",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gateway, err := root.gateway()
			if err != nil {
				return err
			}

			st, err := gateway.WaitUntilArrived(cmd.Context(), args[0], flags.options(cmd)...)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), root.json, stateResult{HandleID: args[0], State: st.String()}, stateText(st))
		},
	}

	flags.registerTransport(cmd)
	flags.registerWait(cmd)

	return cmd
}
