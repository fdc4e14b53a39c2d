package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"clinicore/internal/audit"
	"clinicore/internal/blob"
	"clinicore/internal/persistence"
	"clinicore/pkg/domain"
)

type exportOptions struct {
	format    string
	from      string
	to        string
	actor     string
	entity    string
	action    string
	sensitive bool
	file      string
	archive   bool
}

func newAuditCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}
	cmd.AddCommand(newAuditExportCommand(opts))
	return cmd
}

func newAuditExportCommand(opts *rootOptions) *cobra.Command {
	ex := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export audit entries as JSON or CSV",
		Long: `Export audit entries, newest first, to stdout or a file.

With --archive the organization's full log is written to the configured blob
store under audit/<org>/<timestamp>.<format> instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := ex.filter()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if ex.archive {
				store, err := blob.Open(ctx, persistence.BlobConfig(a.cfg.Blob))
				if err != nil {
					return err
				}
				info, err := a.svc.Audit().Archive(ctx, a.session(), store, ex.format)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "archived %s (%d bytes)\n", info.Key, info.Size)
				return nil
			}

			data, err := a.svc.Audit().Export(ctx, ex.format, filter)
			if err != nil {
				return err
			}
			a.svc.Audit().Log(ctx, a.session(), audit.Entry{
				Action:      domain.AuditExport,
				EntityType:  domain.EntityAuditEntry,
				Description: fmt.Sprintf("audit log exported as %s (%d bytes)", ex.format, len(data)),
			})
			if ex.file == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(ex.file, data, 0o600)
		},
	}
	f := cmd.Flags()
	f.StringVar(&ex.format, "format", audit.FormatJSON, "export format (json|csv)")
	f.StringVar(&ex.from, "from", "", "earliest timestamp, RFC 3339")
	f.StringVar(&ex.to, "to", "", "latest timestamp, RFC 3339")
	f.StringVar(&ex.actor, "actor", "", "only entries by this actor id")
	f.StringVar(&ex.entity, "entity", "", "only entries for this entity type")
	f.StringVar(&ex.action, "action", "", "only entries with this action")
	f.BoolVar(&ex.sensitive, "sensitive", false, "only entries touching protected health information")
	f.StringVar(&ex.file, "file", "", "write to this path instead of stdout")
	f.BoolVar(&ex.archive, "archive", false, "write the export to the blob store")
	return cmd
}

func (ex *exportOptions) filter() (audit.Filter, error) {
	if ex.format != audit.FormatJSON && ex.format != audit.FormatCSV {
		return audit.Filter{}, fmt.Errorf("unsupported export format %q", ex.format)
	}
	f := audit.Filter{
		ActorID:       ex.actor,
		EntityType:    domain.EntityType(ex.entity),
		Action:        domain.AuditAction(ex.action),
		SensitiveOnly: ex.sensitive,
	}
	for _, bound := range []struct {
		raw string
		dst **time.Time
	}{{ex.from, &f.From}, {ex.to, &f.To}} {
		if bound.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, bound.raw)
		if err != nil {
			return audit.Filter{}, fmt.Errorf("parse time %q: %w", bound.raw, err)
		}
		*bound.dst = &t
	}
	return f, nil
}
