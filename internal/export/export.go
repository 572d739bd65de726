// Package export packages an anchor's case state into a bundle and uploads
// it to object storage.
package export

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fraud-workbench/internal/alerts"
	"fraud-workbench/internal/anchor"
	"fraud-workbench/internal/cases"
	"fraud-workbench/internal/dispute"
	s3store "fraud-workbench/internal/storage/s3"

	"github.com/google/uuid"
)

// Bundle is the exported case file for one anchor key.
type Bundle struct {
	ID         string           `json:"id"`
	Anchor     anchor.Anchor    `json:"anchor"`
	AnchorKey  anchor.Key       `json:"anchor_key"`
	Status     string           `json:"status"`
	Action     *cases.Action    `json:"action,omitempty"`
	Notes      []cases.Note     `json:"notes"`
	Alert      *alerts.Alert    `json:"alert,omitempty"`
	Dispute    *dispute.Dispute `json:"dispute,omitempty"`
	GraphNodes map[string]int   `json:"graph_nodes,omitempty"`
	ExportedBy string           `json:"exported_by"`
	ExportedAt time.Time        `json:"exported_at"`
}

// NewBundle starts a bundle for a with a fresh id. Pending notes are left out.
func NewBundle(a anchor.Anchor, store *cases.Store, actor string, now time.Time) Bundle {
	key := a.Key()
	b := Bundle{
		ID:         uuid.NewString(),
		Anchor:     a,
		AnchorKey:  key,
		Status:     store.Status(key),
		Notes:      []cases.Note{},
		ExportedBy: actor,
		ExportedAt: now.UTC(),
	}
	if act, ok := store.Action(key); ok {
		b.Action = &act
	}
	for _, n := range store.Notes(key) {
		if !n.Pending {
			b.Notes = append(b.Notes, n)
		}
	}
	return b
}

// Encode renders the bundle as indented JSON, gzipped when compress is set.
func Encode(b Bundle, compress bool) ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: encode bundle: %w", err)
	}
	if !compress {
		return data, nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, fmt.Errorf("export: compress bundle: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("export: compress bundle: %w", err)
	}
	return buf.Bytes(), nil
}

// Key returns the object key for a bundle: {rule}/{anchor id}/{date}-{id}.json[.gz].
func Key(b Bundle, compress bool) string {
	rule := b.Anchor.RuleKey
	if rule == "" {
		rule = "NONE"
	}
	id := strings.NewReplacer("/", "_", ":", "_").Replace(b.Anchor.ID)
	key := fmt.Sprintf("%s/%s/%s-%s.json", rule, id, b.ExportedAt.Format("20060102T150405Z"), b.ID)
	if compress {
		key += ".gz"
	}
	return key
}

// Uploader stores encoded bundles.
type Uploader interface {
	Upload(ctx context.Context, in *s3store.UploadInput) (*s3store.UploadOutput, error)
}

// Exporter uploads bundles through an Uploader.
type Exporter struct {
	up       Uploader
	compress bool
}

// NewExporter creates an Exporter.
func NewExporter(up Uploader, compress bool) *Exporter {
	return &Exporter{up: up, compress: compress}
}

// Export encodes and uploads b, returning the object location.
func (e *Exporter) Export(ctx context.Context, b Bundle) (string, error) {
	data, err := Encode(b, e.compress)
	if err != nil {
		return "", err
	}

	in := &s3store.UploadInput{
		Key:         Key(b, e.compress),
		Body:        data,
		ContentType: "application/json",
		Metadata: map[string]string{
			"anchor-key":  string(b.AnchorKey),
			"exported-by": b.ExportedBy,
			"status":      b.Status,
		},
	}
	if e.compress {
		in.ContentEncoding = "gzip"
	}

	out, err := e.up.Upload(ctx, in)
	if err != nil {
		return "", err
	}
	return out.Location, nil
}
