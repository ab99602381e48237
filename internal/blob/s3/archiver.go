package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

const (
	// archiveBatch bounds how many rows one archive file holds.
	archiveBatch = 1000
	// multipartThreshold is the payload size above which uploads go through
	// the multipart manager.
	multipartThreshold = minPartSize
)

// MultipartWriter is a BlobWriter that can also stream large payloads in
// parts. *Writer satisfies it.
type MultipartWriter interface {
	domain.BlobWriter
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// ArchiveImpl implements domain.Archiver. Rows are serialized to JSONL,
// uploaded, and only then deleted from the primary store, one batch at a
// time, so a failed upload never loses data.
type ArchiveImpl struct {
	accountID string
	writer    domain.BlobWriter
	reader    domain.BlobReader
	trades    domain.TradeStore
	alerts    domain.AlertStore
	audit     domain.AuditStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewArchiver creates an ArchiveImpl. reader may be nil, in which case
// object keys are not checked for collisions.
func NewArchiver(
	account domain.Account,
	writer domain.BlobWriter,
	reader domain.BlobReader,
	trades domain.TradeStore,
	alerts domain.AlertStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		accountID: account.ID,
		writer:    writer,
		reader:    reader,
		trades:    trades,
		alerts:    alerts,
		audit:     audit,
		logger:    logger.With(slog.String("component", "s3_archiver")),
		now:       time.Now,
	}
}

// ArchiveTrades moves terminal trades last updated before the cutoff to
// archive/trades/ and returns how many rows were archived.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for part := 0; ; part++ {
		trades, err := a.trades.ListSettledBefore(ctx, before, archiveBatch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades query: %w", err)
		}
		if len(trades) == 0 {
			break
		}

		path, err := uploadJSONL(ctx, a, "trades", part, trades)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades: %w", err)
		}

		ids := make([]string, len(trades))
		for i, t := range trades {
			ids[i] = t.ID
		}
		deleted, err := a.trades.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive trades delete: %w", err)
		}
		total += deleted
		a.record(ctx, "archive.trades", path, deleted, before)

		if len(trades) < archiveBatch || deleted == 0 {
			break
		}
	}
	return total, nil
}

// ArchiveAlerts moves alerts created before the cutoff to archive/alerts/.
func (a *ArchiveImpl) ArchiveAlerts(ctx context.Context, before time.Time) (int64, error) {
	alerts, err := a.alerts.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive alerts query: %w", err)
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	var path string
	for part := 0; part*archiveBatch < len(alerts); part++ {
		end := min((part+1)*archiveBatch, len(alerts))
		if path, err = uploadJSONL(ctx, a, "alerts", part, alerts[part*archiveBatch:end]); err != nil {
			return 0, fmt.Errorf("s3blob: archive alerts: %w", err)
		}
	}

	deleted, err := a.alerts.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive alerts delete: %w", err)
	}
	a.record(ctx, "archive.alerts", path, deleted, before)
	return deleted, nil
}

// uploadJSONL writes records as one JSONL object and returns its key.
func uploadJSONL[T any](ctx context.Context, a *ArchiveImpl, kind string, part int, records []T) (string, error) {
	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	path, err := a.freePath(ctx, kind, part)
	if err != nil {
		return "", err
	}

	const contentType = "application/x-ndjson"
	if mw, ok := a.writer.(MultipartWriter); ok && int64(len(buf)) > multipartThreshold {
		err = mw.PutMultipart(ctx, path, bytes.NewReader(buf), contentType, minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentType)
	}
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	return path, nil
}

// freePath picks an object key for this run that does not exist yet.
func (a *ArchiveImpl) freePath(ctx context.Context, kind string, part int) (string, error) {
	base := archivePath(kind, a.now(), part)
	if a.reader == nil {
		return base, nil
	}
	path := base
	for n := 1; ; n++ {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return "", fmt.Errorf("check %s: %w", path, err)
		}
		if !exists {
			return path, nil
		}
		path = fmt.Sprintf("%s.%d", base, n)
	}
}

func (a *ArchiveImpl) record(ctx context.Context, event, path string, count int64, before time.Time) {
	a.logger.InfoContext(ctx, "s3_archiver: archived",
		slog.String("event", event),
		slog.String("path", path),
		slog.Int64("count", count),
	)
	if err := a.audit.Log(ctx, a.accountID, event, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		a.logger.WarnContext(ctx, "s3_archiver: audit log failed", slog.String("error", err.Error()))
	}
}

// archivePath builds the object key for one archive file, partitioned by
// run date:
//
//	archive/trades/2026-03-14/part-000.jsonl
func archivePath(kind string, at time.Time, part int) string {
	return fmt.Sprintf("archive/%s/%s/part-%03d.jsonl", kind, at.UTC().Format(time.DateOnly), part)
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
