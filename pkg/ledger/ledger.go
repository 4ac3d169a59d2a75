// Package ledger is the append-only record store of the coffee supply chain.
//
// Every write becomes a hash-chained Journal entry before it is applied to the
// indexes that serve lookups:
//   - Actors, transformations, shipments, sales, certificates, practices
//   - Confirmations are separate entries; no record is ever rewritten
//   - The chain head commits to the full write history
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
)

const genesisHash = "genesis"

// EntryKind categorizes a journal entry.
type EntryKind string

const (
	KindActor                EntryKind = "ACTOR"
	KindTransformation       EntryKind = "TRANSFORMATION"
	KindShipment             EntryKind = "SHIPMENT"
	KindShipmentConfirmation EntryKind = "SHIPMENT_CONFIRMATION"
	KindSale                 EntryKind = "SALE"
	KindSaleConfirmation     EntryKind = "SALE_CONFIRMATION"
	KindCertificate          EntryKind = "CERTIFICATE"
	KindPractice             EntryKind = "PRACTICE"
)

// Entry is an immutable, hash-chained journal entry.
type Entry struct {
	Sequence    uint64          `json:"sequence"`
	Kind        EntryKind       `json:"kind"`
	ContentHash string          `json:"content_hash"`
	PrevHash    string          `json:"prev_hash"`
	RecordedAt  time.Time       `json:"recorded_at"`
	Data        json.RawMessage `json:"data"`
}

// Journal is an append-only, hash-chained log of ledger writes.
type Journal struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
	clock    func() time.Time
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{
		entries:  make([]Entry, 0),
		headHash: genesisHash,
		clock:    time.Now,
	}
}

// RestoreJournal rebuilds a journal from persisted entries, verifying the
// chain as it goes.
func RestoreJournal(entries []Entry) (*Journal, error) {
	j := NewJournal()
	j.entries = append(j.entries, entries...)
	if err := j.Verify(); err != nil {
		return nil, err
	}
	if n := len(j.entries); n > 0 {
		j.headHash = j.entries[n-1].ContentHash
	}
	return j, nil
}

// WithClock overrides clock for testing.
func (j *Journal) WithClock(clock func() time.Time) *Journal {
	j.clock = clock
	return j
}

// Append records data under kind and returns the new entry.
func (j *Journal) Append(kind EntryKind, data any) (Entry, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal %s entry: %w", kind, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	seq := uint64(len(j.entries)) + 1
	hash, err := entryHash(seq, kind, raw, j.headHash)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Sequence:    seq,
		Kind:        kind,
		ContentHash: hash,
		PrevHash:    j.headHash,
		RecordedAt:  j.clock().UTC(),
		Data:        raw,
	}
	j.entries = append(j.entries, entry)
	j.headHash = hash
	return entry, nil
}

// dropHead removes the last entry. Used when persisting it failed.
func (j *Journal) dropHead() {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := len(j.entries)
	if n == 0 {
		return
	}
	j.entries = j.entries[:n-1]
	j.headHash = genesisHash
	if n > 1 {
		j.headHash = j.entries[n-2].ContentHash
	}
}

// Entries returns a copy of all entries in sequence order.
func (j *Journal) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Head returns the current head hash.
func (j *Journal) Head() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.headHash
}

// Len returns the number of entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Verify checks the integrity of the entire chain.
func (j *Journal) Verify() error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	prev := genesisHash
	for i, e := range j.entries {
		if e.Sequence != uint64(i)+1 {
			return fmt.Errorf("chain broken at entry %d: sequence %d", i+1, e.Sequence)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("chain broken at entry %d: expected prev %s, got %s", i+1, prev, e.PrevHash)
		}
		computed, err := entryHash(e.Sequence, e.Kind, e.Data, e.PrevHash)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i+1, err)
		}
		if computed != e.ContentHash {
			return fmt.Errorf("hash mismatch at entry %d", i+1)
		}
		prev = e.ContentHash
	}
	return nil
}

// entryHash hashes the canonical (RFC 8785) form of the entry so that
// re-encoding Data on a round trip through storage cannot break the chain.
func entryHash(seq uint64, kind EntryKind, data json.RawMessage, prev string) (string, error) {
	raw, err := json.Marshal(struct {
		Seq      uint64          `json:"seq"`
		Kind     EntryKind       `json:"kind"`
		Data     json.RawMessage `json:"data"`
		PrevHash string          `json:"prev"`
	}{seq, kind, data, prev})
	if err != nil {
		return "", fmt.Errorf("failed to marshal hash input: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize hash input: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}
