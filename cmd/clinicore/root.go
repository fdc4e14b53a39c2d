package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clinicore/internal/cloudsync"
	"clinicore/internal/config"
	"clinicore/internal/core"
	"clinicore/internal/logger"
	"clinicore/internal/metrics"
	"clinicore/pkg/domain"
)

// Output formats of the reporting commands.
const (
	outputText = "text"
	outputJSON = "json"
)

var validOutputs = []string{outputText, outputJSON}

// cliActor is the actor recorded for audited work started from the CLI.
const cliActor = "system:cli"

type rootOptions struct {
	configPath string
	output     string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "clinicore",
		Short:         "Local-first clinic and pharmacy data layer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(validOutputs, opts.output) {
				return fmt.Errorf("invalid output %q: must be one of %v", opts.output, validOutputs)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to clinicore.toml")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputText, "output format (text|json)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))
	return cmd
}

// app is one opened clinicore instance.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	svc     *core.Service
}

func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Config(cfg.Log))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	m := metrics.New()
	svc, err := core.Open(ctx, cfg, core.WithLogger(log), core.WithMetrics(m))
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{cfg: cfg, log: log, metrics: m, svc: svc}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.svc.Close(ctx); err != nil {
		a.log.Error("close store", zap.Error(err))
	}
	_ = a.log.Sync()
}

func (a *app) syncEngine() *cloudsync.Engine {
	return a.svc.SyncEngine(a.cfg.Sync, a.cfg.Sync.OrganizationID, nil)
}

func (a *app) session() *domain.Session {
	return &domain.Session{
		ActorID:        cliActor,
		ActorName:      a.cfg.App.Name,
		Role:           domain.RoleAdmin,
		OrganizationID: a.cfg.Sync.OrganizationID,
	}
}

// render writes v as indented JSON, or through text otherwise.
func render(w io.Writer, output string, v any, text func(io.Writer)) error {
	if output == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
