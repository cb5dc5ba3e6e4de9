// Package quota provides the admission ledger that gates new downloads
// against a global and a per-key resource ceiling.
// Reservations are scoped: every Reserve is paired with exactly one
// Release, normally via defer.
package quota

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ytdlhost/ytdlhost/internal/domain"
)

// ─── Limits ─────────────────────────────────────────────────────────────────

// Limits are the ceilings enforced by the ledger. Zero means unlimited.
type Limits struct {
	MaxBytes    int64 // global reserved memory/disk budget
	MaxTasks    int64 // global active reservations
	KeyMaxBytes int64 // per-key reserved budget
	KeyMaxTasks int64 // per-key active reservations
}

// ─── Denials ────────────────────────────────────────────────────────────────

// DenialReason says which ceiling refused a reservation.
type DenialReason string

const (
	DeniedKeyCap    DenialReason = "key_cap"
	DeniedGlobalCap DenialReason = "global_cap"
)

// DeniedError is returned by Reserve. It matches domain.ErrAdmissionDenied.
type DeniedError struct {
	Reason    DenialReason
	KeyName   string
	Requested int64
}

func (e *DeniedError) Error() string {
	switch e.Reason {
	case DeniedKeyCap:
		return fmt.Sprintf("key quota exceeded for %q", e.KeyName)
	default:
		return "global quota exceeded"
	}
}

// Unwrap lets errors.Is(err, domain.ErrAdmissionDenied) match.
func (e *DeniedError) Unwrap() error { return domain.ErrAdmissionDenied }

// ─── Ledger ─────────────────────────────────────────────────────────────────

type usage struct {
	bytes int64
	tasks int64
}

// Ledger tracks outstanding reservations. All check-and-increment happens
// under one mutex so two admissions can never both fit into the last slot.
type Ledger struct {
	mu          sync.Mutex
	limits      Limits
	total       usage
	perKey      map[string]*usage
	outstanding map[string]*Reservation // taskID → reservation

	doubleReleases atomic.Int64
	denied         atomic.Int64
}

// NewLedger creates an empty ledger with the given ceilings.
func NewLedger(limits Limits) *Ledger {
	return &Ledger{
		limits:      limits,
		perKey:      make(map[string]*usage),
		outstanding: make(map[string]*Reservation),
	}
}

// Reservation is returned by Reserve. Caller MUST call Release() (use defer).
type Reservation struct {
	KeyName string
	TaskID  string
	Amount  int64

	ledger   *Ledger
	released atomic.Bool
}

// Reserve atomically checks the ceilings and records a reservation of amount
// bytes for keyName. On denial nothing is recorded.
func (l *Ledger) Reserve(keyName, taskID string, amount int64) (*Reservation, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: negative reservation %d", domain.ErrInvalidRequest, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.outstanding[taskID]; dup {
		return nil, fmt.Errorf("%w: task %s already holds a reservation", domain.ErrInvalidRequest, taskID)
	}

	ku := l.perKey[keyName]
	if ku == nil {
		ku = &usage{}
	}

	// Key ceiling is checked first so a single greedy key is reported as such.
	if exceeds(ku.bytes, amount, l.limits.KeyMaxBytes) || exceeds(ku.tasks, 1, l.limits.KeyMaxTasks) {
		l.denied.Add(1)
		return nil, &DeniedError{Reason: DeniedKeyCap, KeyName: keyName, Requested: amount}
	}
	if exceeds(l.total.bytes, amount, l.limits.MaxBytes) || exceeds(l.total.tasks, 1, l.limits.MaxTasks) {
		l.denied.Add(1)
		return nil, &DeniedError{Reason: DeniedGlobalCap, KeyName: keyName, Requested: amount}
	}

	ku.bytes += amount
	ku.tasks++
	l.perKey[keyName] = ku
	l.total.bytes += amount
	l.total.tasks++

	r := &Reservation{KeyName: keyName, TaskID: taskID, Amount: amount, ledger: l}
	l.outstanding[taskID] = r
	return r, nil
}

func exceeds(used, add, limit int64) bool {
	return limit > 0 && used+add > limit
}

// Release returns the reserved amount to the ledger. A second call is a
// no-op that returns domain.ErrAlreadyReleased and is counted in Stats.
func (r *Reservation) Release() error {
	if !r.released.CompareAndSwap(false, true) {
		r.ledger.doubleReleases.Add(1)
		return domain.ErrAlreadyReleased
	}

	l := r.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total.bytes -= r.Amount
	l.total.tasks--
	if ku := l.perKey[r.KeyName]; ku != nil {
		ku.bytes -= r.Amount
		ku.tasks--
		if ku.tasks == 0 {
			delete(l.perKey, r.KeyName)
		}
	}
	delete(l.outstanding, r.TaskID)
	return nil
}

// Released reports whether Release has been called.
func (r *Reservation) Released() bool { return r.released.Load() }

// ─── Stats ──────────────────────────────────────────────────────────────────

// KeyUsage is one key's share of the ledger.
type KeyUsage struct {
	KeyName string `json:"key_name"`
	Bytes   int64  `json:"bytes"`
	Tasks   int64  `json:"tasks"`
}

// Stats is a point-in-time view of the ledger.
type Stats struct {
	UsedBytes      int64      `json:"used_bytes"`
	Active         int64      `json:"active"`
	Keys           []KeyUsage `json:"keys"`
	Denied         int64      `json:"denied"`
	DoubleReleases int64      `json:"double_releases"`
	Limits         Limits     `json:"limits"`
}

// Stats returns current usage, sorted by key name.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]KeyUsage, 0, len(l.perKey))
	for name, u := range l.perKey {
		keys = append(keys, KeyUsage{KeyName: name, Bytes: u.bytes, Tasks: u.tasks})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].KeyName < keys[j].KeyName })

	return Stats{
		UsedBytes:      l.total.bytes,
		Active:         l.total.tasks,
		Keys:           keys,
		Denied:         l.denied.Load(),
		DoubleReleases: l.doubleReleases.Load(),
		Limits:         l.limits,
	}
}

// Holds reports whether taskID currently has an unreleased reservation.
func (l *Ledger) Holds(taskID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.outstanding[taskID]
	return ok
}
