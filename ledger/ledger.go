// Package ledger keeps the session-scoped, append-only history of
// registration attempts.
package ledger

import (
	"sync"

	"github.com/google/uuid"
	"github.com/ruteri/encrypted-name-registry/interfaces"
)

// Ledger is an in-memory, most-recent-first sequence of registration records.
// Records are never removed; once a record is success or failed it is frozen.
type Ledger struct {
	mutex   sync.RWMutex
	records []interfaces.RegistrationRecord
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Append prepends record so the newest attempt comes first.
func (l *Ledger) Append(record interfaces.RegistrationRecord) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.records = append([]interfaces.RegistrationRecord{record}, l.records...)
}

// UpdateByReference patches the first record carrying ref.
// It reports false when no record matches or the match is already terminal.
func (l *Ledger) UpdateByReference(ref string, patch interfaces.RecordPatch) bool {
	return l.updateFirst(func(r *interfaces.RegistrationRecord) bool {
		return r.Reference == ref
	}, patch)
}

// UpdateLatestPendingByName patches the most recent pending record for name.
func (l *Ledger) UpdateLatestPendingByName(name string, patch interfaces.RecordPatch) bool {
	return l.updateFirst(func(r *interfaces.RegistrationRecord) bool {
		return r.Name == name && r.Status == interfaces.StatusPending
	}, patch)
}

func (l *Ledger) updateFirst(match func(*interfaces.RegistrationRecord) bool, patch interfaces.RecordPatch) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	for i := range l.records {
		if !match(&l.records[i]) {
			continue
		}
		if l.records[i].Status.Terminal() {
			return false
		}
		l.records[i] = patch.Apply(l.records[i])
		return true
	}
	return false
}

// Records returns a copy of all records, newest first.
func (l *Ledger) Records() []interfaces.RegistrationRecord {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	out := make([]interfaces.RegistrationRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Get returns the record with id.
func (l *Ledger) Get(id uuid.UUID) (interfaces.RegistrationRecord, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for _, r := range l.records {
		if r.ID == id {
			return r, true
		}
	}
	return interfaces.RegistrationRecord{}, false
}

// Pending returns the number of records still awaiting a terminal status.
func (l *Ledger) Pending() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	n := 0
	for _, r := range l.records {
		if r.Status == interfaces.StatusPending {
			n++
		}
	}
	return n
}
