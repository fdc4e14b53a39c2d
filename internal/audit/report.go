package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"clinicore/internal/blob"
	"clinicore/pkg/domain"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Report summarises the log over a period.
type Report struct {
	From            time.Time                  `json:"from"`
	To              time.Time                  `json:"to"`
	GeneratedAt     time.Time                  `json:"generated_at"`
	Total           int                        `json:"total"`
	ByActor         map[string]int             `json:"by_actor"`
	ByAction        map[domain.AuditAction]int `json:"by_action"`
	SensitiveAccess int                        `json:"sensitive_access"`
	FailedLogins    int                        `json:"failed_logins"`
}

// Report counts entries between from and to inclusive. Sensitive access
// counts VIEW entries on sensitive records.
func (l *Logger) Report(ctx context.Context, from, to time.Time) (Report, error) {
	entries, err := l.Query(ctx, Filter{From: &from, To: &to})
	if err != nil {
		return Report{}, err
	}
	r := Report{
		From:        from,
		To:          to,
		GeneratedAt: l.store.NowFunc()(),
		Total:       len(entries),
		ByActor:     make(map[string]int),
		ByAction:    make(map[domain.AuditAction]int),
	}
	for _, e := range entries {
		r.ByActor[e.ActorID]++
		r.ByAction[e.Action]++
		if e.Sensitive && e.Action == domain.AuditView {
			r.SensitiveAccess++
		}
		if e.Action == domain.AuditLoginFailed {
			r.FailedLogins++
		}
	}
	return r, nil
}

// Export renders matching entries as JSON or CSV.
func (l *Logger) Export(ctx context.Context, format string, f Filter) ([]byte, error) {
	entries, err := l.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	return Encode(format, entries)
}

// Encode renders entries in format.
func Encode(format string, entries []domain.AuditEntry) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return json.MarshalIndent(entries, "", "  ")
	case FormatCSV:
		return encodeCSV(entries)
	default:
		return nil, fmt.Errorf("unsupported audit export format %q", format)
	}
}

var csvHeader = []string{
	"seq", "id", "timestamp", "actor_id", "actor_name", "actor_role", "organization_id",
	"action", "entity_type", "entity_id", "entity_name", "changed_fields", "sensitive",
	"automated", "description",
}

func encodeCSV(entries []domain.AuditEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, e := range entries {
		fields := make([]byte, 0, 64)
		for i, c := range e.Changes {
			if i > 0 {
				fields = append(fields, ';')
			}
			fields = append(fields, c.Field...)
		}
		record := []string{
			strconv.FormatInt(e.Seq, 10), e.ID, e.Timestamp.UTC().Format(time.RFC3339),
			e.ActorID, e.ActorName, string(e.ActorRole), e.OrganizationID,
			string(e.Action), string(e.EntityType), e.EntityID, e.EntityName, string(fields),
			strconv.FormatBool(e.Sensitive), strconv.FormatBool(e.Automated), e.Description,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ArchiveKey is the object key for an export taken at t.
func ArchiveKey(organizationID string, t time.Time, format string) string {
	if organizationID == "" {
		organizationID = "all"
	}
	return fmt.Sprintf("audit/%s/%s.%s", organizationID, t.UTC().Format("20060102T150405Z"), format)
}

// Archive exports the organization's entries and writes them to store. The
// export itself is audited as EXPORT.
func (l *Logger) Archive(ctx context.Context, sess *domain.Session, store blob.Store, format string) (blob.Info, error) {
	if format == "" {
		format = FormatJSON
	}
	f := Filter{}
	if sess != nil {
		f.OrganizationID = sess.OrganizationID
	}
	data, err := l.Export(ctx, format, f)
	if err != nil {
		return blob.Info{}, err
	}
	key := ArchiveKey(f.OrganizationID, l.store.NowFunc()(), format)
	contentType := "application/json"
	if format == FormatCSV {
		contentType = "text/csv"
	}
	info, err := blob.Replace(ctx, store, key, data, contentType)
	if err != nil {
		return blob.Info{}, fmt.Errorf("archive audit log: %w", err)
	}
	l.Log(ctx, sess, Entry{
		Action:      domain.AuditExport,
		EntityType:  domain.EntityAuditEntry,
		EntityID:    key,
		Description: fmt.Sprintf("audit log archived as %s (%d bytes)", format, info.Size),
	})
	return info, nil
}
