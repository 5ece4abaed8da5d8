// Package dlq implements the dead-letter queue and the ProcessedIndex
// idempotency guard (spec §4.9). Grounded on the teacher's
// agent/persistence/file_message_store.go atomic-rename pattern and
// in-memory mirror; the storage mechanism replaces the teacher's
// Redis/in-memory llm/idempotency.Manager, whose interface shape
// (Get/Set/Exists) is kept but whose backing store is file-based JSON
// per spec §6's persisted-state layout.
package dlq

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/limmutable/collabiq/internal/persistence"
	"github.com/limmutable/collabiq/internal/types"
)

// Store owns DLQ entries and the ProcessedIndex, each backed by its
// own file under dataRoot per spec §6.
type Store struct {
	mu       sync.Mutex
	dataRoot string
	logger   *zap.Logger

	entries   map[string]*types.DLQEntry // keyed by email_id|stage
	processed map[string]struct{}
}

// New constructs a Store rooted at dataRoot.
func New(dataRoot string, logger *zap.Logger) *Store {
	return &Store{
		dataRoot:  dataRoot,
		logger:    logger,
		entries:   map[string]*types.DLQEntry{},
		processed: map[string]struct{}{},
	}
}

func key(emailID, stage string) string { return emailID + "|" + stage }

func (s *Store) processedIndexPath() string {
	return filepath.Join(s.dataRoot, "processed_ids.json")
}

func (s *Store) dlqPath(severity types.Severity, emailID, stage string) string {
	return filepath.Join(s.dataRoot, "dlq", string(severity), fmt.Sprintf("%s_%s.json", emailID, stage))
}

// LoadProcessedIndex restores the ProcessedIndex, tolerating a
// missing/corrupt file.
func (s *Store) LoadProcessedIndex() {
	var ids []string
	persistence.LoadOrDefault(s.logger, s.processedIndexPath(), &ids)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.processed[id] = struct{}{}
	}
}

// IsProcessed reports whether emailID already has a successfully
// written KB record.
func (s *Store) IsProcessed(emailID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[emailID]
	return ok
}

// MarkProcessed adds emailID to the ProcessedIndex and persists it
// atomically; this must be called in the same logical step as the
// write acknowledgment per spec §4.9.
func (s *Store) MarkProcessed(emailID string) error {
	s.mu.Lock()
	s.processed[emailID] = struct{}{}
	ids := make([]string, 0, len(s.processed))
	for id := range s.processed {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	return persistence.WriteJSON(s.processedIndexPath(), ids)
}

// Append records a terminal write failure, keyed by (email_id, stage);
// a later failure for the same key overwrites the entry in place.
func (s *Store) Append(emailID, stage string, payload []byte, errInfo types.DLQErrorInfo, severity types.Severity) error {
	s.mu.Lock()
	k := key(emailID, stage)
	existing, ok := s.entries[k]
	now := time.Now()
	entry := &types.DLQEntry{
		DLQID:         uuid.NewString(),
		EmailID:       emailID,
		Stage:         stage,
		Payload:       payload,
		Error:         errInfo,
		FirstFailedAt: now,
		LastAttemptAt: now,
		Severity:      severity,
	}
	if ok {
		entry.DLQID = existing.DLQID
		entry.FirstFailedAt = existing.FirstFailedAt
	}
	s.entries[k] = entry
	s.mu.Unlock()

	return persistence.WriteJSON(s.dlqPath(severity, emailID, stage), entry)
}

// List returns every unresolved DLQ entry.
func (s *Store) List() []types.DLQEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.DLQEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.Resolved {
			out = append(out, *e)
		}
	}
	return out
}

// Replayer is invoked by Replay to retry a write for one DLQ entry; it
// returns nil on success.
type Replayer func(entry types.DLQEntry) error

// Replay reconstructs and retries the write for entry via replay. On
// success, the entry is archived (marked resolved and persisted); on
// failure, last_attempt_at and retry_count are updated and persisted.
func (s *Store) Replay(entry types.DLQEntry, replay Replayer) error {
	err := replay(entry)

	s.mu.Lock()
	k := key(entry.EmailID, entry.Stage)
	stored, ok := s.entries[k]
	if !ok {
		stored = &entry
		s.entries[k] = stored
	}
	if err == nil {
		stored.Resolved = true
	} else {
		stored.LastAttemptAt = time.Now()
		stored.Error.RetryCount++
	}
	snapshot := *stored
	s.mu.Unlock()

	return persistence.WriteJSON(s.dlqPath(snapshot.Severity, snapshot.EmailID, snapshot.Stage), snapshot)
}

// Clear archives entry without replay, for operator overrides on
// unrecoverable failures (`errors clear`).
func (s *Store) Clear(emailID, stage string) error {
	s.mu.Lock()
	k := key(emailID, stage)
	entry, ok := s.entries[k]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no dlq entry for %s/%s", emailID, stage)
	}
	entry.Resolved = true
	snapshot := *entry
	s.mu.Unlock()

	return persistence.WriteJSON(s.dlqPath(snapshot.Severity, snapshot.EmailID, snapshot.Stage), snapshot)
}
