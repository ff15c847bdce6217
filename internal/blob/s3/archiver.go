package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paddockmarkets/paddock/internal/domain"
)

// Archiver exports resolved pools and markets to object storage as JSON
// snapshots. The primary store keeps the resolved rows; the archive is a
// durable record of the final state, positions and fills included.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewArchiver creates an Archiver that writes through writer. A non-nil
// reader makes archival write-once: a snapshot that already exists is left
// untouched, so a retried resolution cannot rewrite the recorded final state.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader) *Archiver {
	return &Archiver{writer: writer, reader: reader}
}

// poolSnapshot is the archived form of a resolved pool.
type poolSnapshot struct {
	Pool       domain.Pool       `json:"pool"`
	Positions  []domain.Position `json:"positions"`
	ArchivedAt time.Time         `json:"archived_at"`
}

// marketSnapshot is the archived form of a resolved market.
type marketSnapshot struct {
	Market     domain.Market `json:"market"`
	Fills      []domain.Fill `json:"fills"`
	ArchivedAt time.Time     `json:"archived_at"`
}

// ArchivePool uploads the final state of a resolved pool to
// archive/pools/{season}/{id}.json.
func (a *Archiver) ArchivePool(ctx context.Context, pool domain.Pool, positions []domain.Position) error {
	snap := poolSnapshot{
		Pool:       pool,
		Positions:  positions,
		ArchivedAt: time.Now().UTC(),
	}

	buf, err := marshalSnapshot(snap)
	if err != nil {
		return fmt.Errorf("s3blob: archive pool %s: %w", pool.ID, err)
	}

	path := archivePath("pools", pool.SeasonID, pool.ID)
	if err := a.put(ctx, path, buf); err != nil {
		return fmt.Errorf("s3blob: archive pool %s: %w", pool.ID, err)
	}
	return nil
}

// ArchiveMarket uploads the final state of a resolved market to
// archive/markets/{season}/{id}.json.
func (a *Archiver) ArchiveMarket(ctx context.Context, market domain.Market, fills []domain.Fill) error {
	snap := marketSnapshot{
		Market:     market,
		Fills:      fills,
		ArchivedAt: time.Now().UTC(),
	}

	buf, err := marshalSnapshot(snap)
	if err != nil {
		return fmt.Errorf("s3blob: archive market %s: %w", market.ID, err)
	}

	path := archivePath("markets", market.SeasonID, market.ID)
	if err := a.put(ctx, path, buf); err != nil {
		return fmt.Errorf("s3blob: archive market %s: %w", market.ID, err)
	}
	return nil
}

// put uploads one snapshot, honouring write-once when a reader is present.
func (a *Archiver) put(ctx context.Context, path string, buf []byte) error {
	if a.reader != nil {
		ok, err := a.reader.Exists(ctx, path)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json")
}

// archivePath builds the S3 key for an archive snapshot, partitioned by
// season:
//
//	archive/pools/season-2026/{pool-id}.json
//	archive/markets/season-2026/{market-id}.json
func archivePath(kind, seasonID, id string) string {
	return fmt.Sprintf("archive/%s/%s/%s.json", kind, seasonID, id)
}

// marshalSnapshot serialises a snapshot as compact JSON.
func marshalSnapshot(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
