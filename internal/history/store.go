// Package history keeps the durable record of finished orders. Records are
// stored newest first as one JSON blob in the local key→value store; a
// corrupt blob is recovered as an empty collection so broken history can
// never block ordering a menu.
package history

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/bingyoan/SAUSEGE/internal/localstore"
	"github.com/bingyoan/SAUSEGE/internal/menu"
)

// Store reads and writes the order history collection.
type Store struct {
	kv     *localstore.Store
	logger *zap.Logger
}

// NewStore creates a history store over the given key→value store.
func NewStore(kv *localstore.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, logger: logger}
}

// LoadAll returns all records, newest first. Absent or unparseable persisted
// state yields an empty collection, never an error.
func (s *Store) LoadAll() []menu.HistoryRecord {
	raw := s.kv.Get(localstore.KeyHistory)
	if raw == "" {
		return nil
	}

	var records []menu.HistoryRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		s.logger.Warn("discarding corrupt order history", zap.Error(err))
		return nil
	}
	return records
}

// Append prepends record to the stored collection, so retrieval stays
// reverse-chronological without a separate sort.
func (s *Store) Append(record menu.HistoryRecord) error {
	records := append([]menu.HistoryRecord{record}, s.LoadAll()...)
	if err := s.save(records); err != nil {
		return err
	}

	s.logger.Info("order recorded",
		zap.String("id", record.ID),
		zap.Float64("total", record.TotalOriginalPrice),
		zap.String("currency", record.Currency))
	return nil
}

// Remove deletes the record with the given id. Removing an unknown id is a
// no-op.
func (s *Store) Remove(id string) error {
	records := s.LoadAll()
	kept := records[:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return nil
	}
	return s.save(kept)
}

func (s *Store) save(records []menu.HistoryRecord) error {
	blob, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.kv.Set(localstore.KeyHistory, string(blob)); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}
