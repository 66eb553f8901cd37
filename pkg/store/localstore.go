package store

import (
	"context"
	"sync"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
)

// record is the value half of LocalStore's map: a payload, an absolute
// unix-second expiry, and the record's current CAS token.
type record struct {
	data   []byte
	cas    uint64
	expiry int64
}

func (r record) expired(now int64) bool {
	return r.expiry < now
}

// LocalStore is an in-process reference implementation of Store, used as
// both a test double and an embeddable single-node store. It holds its
// records under a single mutex, exactly as the original in-memory store
// does; correctness, not throughput, is the goal here.
type LocalStore struct {
	log zerolog.Logger

	mu sync.Mutex
	db map[string]record
	// oldDB shadows db with the record each key held immediately before
	// its most recent successful set. forceContention temporarily
	// redirects reads to oldDB to simulate a writer racing ahead of a
	// stale reader, for tests that exercise DATA_CONTENTION handling.
	oldDB map[string]record

	forceContention    bool
	forceErrorOnGet    bool
	forceErrorOnSet    bool
	forceErrorOnDelete bool
}

// NewLocalStore creates an empty LocalStore.
func NewLocalStore(log zerolog.Logger) *LocalStore {
	return &LocalStore{
		log:   log.With().Str("component", "localstore").Logger(),
		db:    make(map[string]record),
		oldDB: make(map[string]record),
	}
}

// FlushAll removes every record.
func (s *LocalStore) FlushAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db = make(map[string]record)
}

// ForceContention arranges for the next Get to read from the shadow map
// instead of the live one, simulating a reader that raced a concurrent
// writer and observed the prior value.
func (s *LocalStore) ForceContention() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceContention = true
}

// ForceGetError arranges for the next Get to fail with StatusError.
func (s *LocalStore) ForceGetError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceErrorOnGet = true
}

// ForceSetError arranges for the next Set to fail with StatusError.
func (s *LocalStore) ForceSetError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceErrorOnSet = true
}

// ForceDeleteError arranges for the next Delete to fail with StatusError.
func (s *LocalStore) ForceDeleteError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceErrorOnDelete = true
}

func (s *LocalStore) Get(ctx context.Context, table, key string) (Outcome, error) {
	fqkey, err := NewKey(table, key)
	if err != nil {
		return Outcome{Status: StatusError}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceErrorOnGet {
		s.forceErrorOnGet = false
		return Outcome{Status: StatusError}, nil
	}

	dbInUse := s.db
	if s.forceContention {
		dbInUse = s.oldDB
		s.forceContention = false
	}

	now := time.Now().Unix()
	r, ok := dbInUse[fqkey]
	if !ok {
		return Outcome{Status: StatusNotFound}, nil
	}
	if r.expired(now) {
		delete(dbInUse, fqkey)
		return Outcome{Status: StatusNotFound}, nil
	}
	if IsTombstone(r.data) {
		return Outcome{Status: StatusNotFound, CAS: 0}, nil
	}
	return Outcome{Status: StatusOK, Data: r.data, CAS: r.cas}, nil
}

func (s *LocalStore) Set(ctx context.Context, table, key string, data []byte, cas uint64, expirySeconds int) (Outcome, error) {
	fqkey, err := NewKey(table, key)
	if err != nil {
		return Outcome{Status: StatusError}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceErrorOnSet {
		s.forceErrorOnSet = false
		return Outcome{Status: StatusError}, nil
	}

	now := time.Now().Unix()
	expiry := absoluteExpiry(expirySeconds, now)

	existing, ok := s.db[fqkey]
	switch {
	case ok && !existing.expired(now) && cas == existing.cas:
		s.oldDB[fqkey] = existing
		existing.data = data
		existing.cas = cas + 1
		existing.expiry = expiry
		s.db[fqkey] = existing
		return Outcome{Status: StatusOK, CAS: existing.cas}, nil

	case ok && existing.expired(now) && cas == 0:
		s.oldDB[fqkey] = existing
		s.db[fqkey] = record{data: data, cas: 1, expiry: expiry}
		return Outcome{Status: StatusOK, CAS: 1}, nil

	case !ok && cas == 0:
		s.db[fqkey] = record{data: data, cas: 1, expiry: expiry}
		return Outcome{Status: StatusOK, CAS: 1}, nil

	default:
		return Outcome{Status: StatusDataContention}, nil
	}
}

func (s *LocalStore) Delete(ctx context.Context, table, key string) (Outcome, error) {
	fqkey, err := NewKey(table, key)
	if err != nil {
		return Outcome{Status: StatusError}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceErrorOnDelete {
		s.forceErrorOnDelete = false
		return Outcome{Status: StatusError}, nil
	}

	delete(s.db, fqkey)
	return Outcome{Status: StatusOK}, nil
}

// absoluteExpiry converts a relative expiry in seconds into an absolute
// unix timestamp. Zero means "expire immediately": the record's absolute
// expiry is set to zero, which is always less than the current time.
func absoluteExpiry(expirySeconds int, now int64) int64 {
	if expirySeconds == 0 {
		return 0
	}
	return now + int64(expirySeconds)
}

// SwapDBs exchanges the live and shadow maps of s and other. It always
// acquires the two locks in ascending address order so that two
// concurrent swaps between the same pair of stores cannot deadlock.
func (s *LocalStore) SwapDBs(other *LocalStore) {
	first, second := s, other
	if uintptr(unsafe.Pointer(s)) > uintptr(unsafe.Pointer(other)) {
		first, second = other, s
	}

	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	s.db, other.db = other.db, s.db
	s.oldDB, other.oldDB = other.oldDB, s.oldDB
}
