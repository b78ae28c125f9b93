package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/kursadbilgin/plusserver-sms/internal/config"
	"github.com/kursadbilgin/plusserver-sms/internal/infra/postgresql"
	"github.com/kursadbilgin/plusserver-sms/internal/observability"
	"github.com/kursadbilgin/plusserver-sms/internal/queue"
	"github.com/kursadbilgin/plusserver-sms/plusserver"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Gateway is the part of *plusserver.Client used by the commands.
type Gateway interface {
	Send(ctx context.Context, m *plusserver.Message, opts ...plusserver.Option) (plusserver.Outcome, error)
	CheckState(ctx context.Context, m *plusserver.Message, opts ...plusserver.Option) (plusserver.State, error)
	CheckSMSState(ctx context.Context, handleID string, opts ...plusserver.Option) (plusserver.State, error)
	WaitUntilArrived(ctx context.Context, handleID string, opts ...plusserver.Option) (plusserver.State, error)
}

var _ Gateway = (*plusserver.Client)(nil)

// Deps builds the collaborators of the commands lazily, so that commands
// only touch the environment they need.
type Deps struct {
	Gateway   func(logger *zap.Logger) (Gateway, error)
	Publisher func() (queue.Publisher, error)
	Store     func() (Store, error)
}

// DefaultDeps reads the gateway settings and the broker url from the environment.
func DefaultDeps() Deps {
	return Deps{
		Gateway: func(logger *zap.Logger) (Gateway, error) {
			provider, err := config.LoadProvider()
			if err != nil {
				return nil, err
			}
			settings, err := provider.Settings()
			if err != nil {
				return nil, err
			}
			return plusserver.NewClient(plusserver.NewConfig(settings...), plusserver.UseLogger(logger)), nil
		},
		Publisher: func() (queue.Publisher, error) {
			url, err := config.LoadBrokerURL()
			if err != nil {
				return nil, err
			}
			client, err := queue.NewRabbitMQ(url)
			if err != nil {
				return nil, err
			}
			return queue.NewRabbitMQPublisher(client), nil
		},
		Store: func() (Store, error) {
			dsn, err := config.LoadDatabaseDSN()
			if err != nil {
				return nil, err
			}
			db, err := postgresql.NewPostgres(dsn, postgresql.PoolOptions{MaxOpenConns: 1, MaxIdleConns: 1})
			if err != nil {
				return nil, err
			}
			return NewStore(db), nil
		},
	}
}

type rootOptions struct {
	deps     Deps
	json     bool
	logLevel string
}

// NewRootCommand returns the smsctl command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	opts := &rootOptions{deps: deps}

	root := &cobra.Command{
		Use:   "smsctl",
		Short: "Send SMS through the plusserver gateway and check their delivery state",
		Long: `smsctl talks to the plusserver SMS gateway.

Credentials and defaults come from PLUSSERVER_* environment variables
or a .env file in the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "Output in JSON format")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "error", "Log level: debug, info, warn, error")

	root.AddCommand(newSendCommand(opts))
	root.AddCommand(newStateCommand(opts))
	root.AddCommand(newWaitCommand(opts))
	root.AddCommand(newEnqueueCommand(opts))
	root.AddCommand(newDispatchCommand(opts))

	return root
}

// Execute runs smsctl with args and the process environment.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := NewRootCommand(DefaultDeps())
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func (o *rootOptions) gateway() (Gateway, error) {
	if o.deps.Gateway == nil {
		return nil, fmt.Errorf("gateway is not configured")
	}
	logger, err := observability.NewLogger(o.logLevel)
	if err != nil {
		return nil, err
	}
	return o.deps.Gateway(logger)
}

func (o *rootOptions) store() (Store, error) {
	if o.deps.Store == nil {
		return nil, fmt.Errorf("dispatch store is not configured")
	}
	return o.deps.Store()
}
