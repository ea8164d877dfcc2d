// Package campaignlog builds the campaignlog command tree.
package campaignlog

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	entrypoint "github.com/louisbranch/campaignlog/internal/platform/cmd"
	"github.com/louisbranch/campaignlog/internal/services/campaign/app"
)

type serviceKey struct{}

// runner carries the configuration shared by every subcommand.
type runner struct {
	cfg     app.Config
	cfgErr  error
	opts    []app.Option
	driver  string
	dbPath  string
	cadence uint64
	noColor bool
}

// Option customizes the command tree.
type Option func(*runner)

// WithAppOptions passes options through to app.Bootstrap.
func WithAppOptions(opts ...app.Option) Option {
	return func(r *runner) {
		r.opts = append(r.opts, opts...)
	}
}

// NewRootCmd builds the root command. Environment configuration is loaded
// once; flags override it.
func NewRootCmd(opts ...Option) *cobra.Command {
	r := &runner{}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.cfg, r.cfgErr = app.LoadConfig()
	if r.cfgErr != nil {
		r.cfg = app.DefaultConfig()
	}

	root := &cobra.Command{
		Use:   "campaignlog",
		Short: "Event-sourced campaign state store",
		Long: `campaignlog records every simulation step of a campaign in an append-only,
checksummed event log, rebuilds state from the nearest snapshot, and forks
campaigns into independent branches at any point of their history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return r.open(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&r.driver, "driver", "", "store driver: sqlite, postgres or memory (overrides CAMPAIGNLOG_STORE_DRIVER)")
	flags.StringVar(&r.dbPath, "db", "", "SQLite database path (overrides CAMPAIGNLOG_SQLITE_PATH)")
	flags.Uint64Var(&r.cadence, "cadence", 0, "snapshot every N committed events (overrides CAMPAIGNLOG_SNAPSHOT_CADENCE)")
	flags.BoolVar(&r.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		createCmd(),
		listCmd(),
		showCmd(),
		resumeCmd(),
		stepCmd(),
		branchCmd(),
		branchesCmd(),
		snapshotCmd(),
		snapshotsCmd(),
		eventsCmd(),
		verifyCmd(),
		statusCmd(),
		archiveCmd(),
		keygenCmd(),
	)
	return root
}

// Run executes the command tree with tracing configured.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCampaignLog, func(ctx context.Context) error {
		root := NewRootCmd()
		root.SetArgs(args)
		root.SetOut(stdout)
		root.SetErr(stderr)
		return root.ExecuteContext(ctx)
	})
}

func (r *runner) open(cmd *cobra.Command) error {
	if r.cfgErr != nil {
		return r.cfgErr
	}
	cfg := r.cfg
	if r.driver != "" {
		cfg.StoreDriver = r.driver
	}
	if r.dbPath != "" {
		cfg.SQLitePath = r.dbPath
	}
	if r.cadence > 0 {
		cfg.SnapshotCadence = r.cadence
	}
	if r.noColor {
		disableColor()
	}
	svc, err := app.Bootstrap(cmd.Context(), cfg, r.opts...)
	if err != nil {
		return err
	}
	cmd.SetContext(context.WithValue(cmd.Context(), serviceKey{}, svc))
	return nil
}

func service(cmd *cobra.Command) (*app.Service, error) {
	svc, ok := cmd.Context().Value(serviceKey{}).(*app.Service)
	if !ok || svc == nil {
		return nil, errors.New("campaign service is not initialized")
	}
	return svc, nil
}

// withService hands the opened service to fn and closes it afterwards, also
// when fn fails.
func withService(fn func(cmd *cobra.Command, svc *app.Service, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		svc, err := service(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := svc.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close store: %w", closeErr)
			}
		}()
		return fn(cmd, svc, args)
	}
}
