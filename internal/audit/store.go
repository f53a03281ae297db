// Package audit serializes PromotionRecord and RollbackRecord values to and
// from OCI annotations under the dev.floe. namespace (spec §6), pairing a
// full JSON blob with indexed scalar annotations so simple tooling can read
// individual fields without a JSON parser.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/obsidian-owl/floe/internal/floe"
	"github.com/obsidian-owl/floe/internal/registry"
)

const (
	promotionKey   = "dev.floe.promotion"
	promotionIDKey = "dev.floe.promotion.id"
	sourceKey      = "dev.floe.promotion.source"
	targetKey      = "dev.floe.promotion.target"
	operatorKey    = "dev.floe.promotion.operator"
	timestampKey   = "dev.floe.promotion.timestamp"
	traceIDKey     = "dev.floe.promotion.trace-id"
	dryRunKey      = "dev.floe.promotion.dry-run"
	rollbackKey    = "dev.floe.rollback"
)

// Store reads and writes promotion/rollback audit annotations through a
// registry Adapter.
type Store struct {
	adapter registry.Adapter
}

// NewStore constructs a Store bound to the given registry adapter.
func NewStore(adapter registry.Adapter) *Store {
	return &Store{adapter: adapter}
}

// WritePromotion stores a PromotionRecord on ref as both the full JSON blob
// and a set of indexed scalar annotations.
func (s *Store) WritePromotion(ctx context.Context, ref string, rec floe.PromotionRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode promotion record: %w", err)
	}
	annotations := map[string]string{
		promotionKey:   string(blob),
		promotionIDKey: rec.PromotionID,
		sourceKey:      rec.SourceEnv,
		targetKey:      rec.TargetEnv,
		operatorKey:    rec.Operator,
		timestampKey:   rec.PromotedAt.UTC().Format(rfc3339Milli),
		traceIDKey:     rec.TraceID,
		dryRunKey:      strconv.FormatBool(rec.DryRun),
	}
	return s.adapter.SetAnnotations(ctx, ref, annotations)
}

// ReadPromotion reads back the full PromotionRecord from ref, if present.
func (s *Store) ReadPromotion(ctx context.Context, ref string) (*floe.PromotionRecord, error) {
	annotations, err := s.adapter.GetAnnotations(ctx, ref)
	if err != nil {
		return nil, err
	}
	raw, ok := annotations[promotionKey]
	if !ok {
		return nil, nil
	}
	var rec floe.PromotionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode promotion record on %q: %w", ref, err)
	}
	return &rec, nil
}

// WriteRollback stores a RollbackRecord on ref as a full JSON blob.
func (s *Store) WriteRollback(ctx context.Context, ref string, rec floe.RollbackRecord) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode rollback record: %w", err)
	}
	return s.adapter.SetAnnotations(ctx, ref, map[string]string{rollbackKey: string(blob)})
}

// ReadRollback reads back the full RollbackRecord from ref, if present.
func (s *Store) ReadRollback(ctx context.Context, ref string) (*floe.RollbackRecord, error) {
	annotations, err := s.adapter.GetAnnotations(ctx, ref)
	if err != nil {
		return nil, err
	}
	raw, ok := annotations[rollbackKey]
	if !ok {
		return nil, nil
	}
	var rec floe.RollbackRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode rollback record on %q: %w", ref, err)
	}
	return &rec, nil
}

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"
