package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/skybotdev/skybot/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver. The Postgres stores
// satisfy these implicitly through their ListBefore methods.
// ---------------------------------------------------------------------------

// WeatherArchiveStore provides read access to aged weather snapshots.
type WeatherArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.WeatherSnapshot, error)
}

// MarketArchiveStore provides read access to aged market snapshots.
type MarketArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.MarketSnapshot, error)
}

// SignalArchiveStore provides read access to aged signals.
type SignalArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Signal, error)
}

// BlobWriter uploads one object.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// multipartThreshold is the payload size above which uploads go through
// the multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// Archiver serializes aged ops rows to JSONL and uploads them to object
// storage, month-partitioned. Archived rows are not deleted from the
// primary store.
type Archiver struct {
	writer  BlobWriter
	weather WeatherArchiveStore
	markets MarketArchiveStore
	signals SignalArchiveStore
	logger  *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer BlobWriter, weather WeatherArchiveStore, markets MarketArchiveStore, signals SignalArchiveStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  writer,
		weather: weather,
		markets: markets,
		signals: signals,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// Run archives everything older than the cutoff and returns the total row
// count uploaded.
func (a *Archiver) Run(ctx context.Context, before time.Time) (int64, error) {
	var total int64

	weather, err := a.weather.ListBefore(ctx, before)
	if err != nil {
		return total, fmt.Errorf("s3blob: archive weather query: %w", err)
	}
	n, err := archiveKind(ctx, a, "weather_snapshots", before, weather)
	if err != nil {
		return total, err
	}
	total += n

	markets, err := a.markets.ListBefore(ctx, before)
	if err != nil {
		return total, fmt.Errorf("s3blob: archive markets query: %w", err)
	}
	n, err = archiveKind(ctx, a, "market_snapshots", before, markets)
	if err != nil {
		return total, err
	}
	total += n

	signals, err := a.signals.ListBefore(ctx, before)
	if err != nil {
		return total, fmt.Errorf("s3blob: archive signals query: %w", err)
	}
	n, err = archiveKind(ctx, a, "signals", before, signals)
	if err != nil {
		return total, err
	}
	total += n

	a.logger.InfoContext(ctx, "archive sweep complete",
		slog.Int64("rows", total),
		slog.Time("before", before),
	)

	return total, nil
}

// archiveKind serializes records to JSONL and writes one month-partitioned
// object, e.g. archive/signals/2026-08.jsonl.
func archiveKind[T any](ctx context.Context, a *Archiver, kind string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	a.logger.InfoContext(ctx, "archived",
		slog.String("path", path),
		slog.Int("rows", len(records)),
	)
	return int64(len(records)), nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON
// (JSONL). Each element is marshalled as a single compact JSON line
// followed by '\n'.
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
