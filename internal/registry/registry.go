// Package registry holds the authoritative in-memory set of active pearls.
//
// Pearls are stored in a single go-memdb table indexed by player id and by
// lower-cased player name. Every mutation is one write transaction, so the two
// indexes are updated together and readers, which work on immutable
// snapshots, never observe one without the other.
package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"

	"github.com/Maxopoly/ExilePearl/internal/pearl"
)

var (
	// ErrAlreadyActive is returned by Insert when the player already has a pearl.
	ErrAlreadyActive = errors.New("player already has an active pearl")
	// ErrNotActive is returned when the player has no active pearl.
	ErrNotActive = errors.New("player has no active pearl")
)

// Registry is the dual-indexed store of active pearls. Stored values are never
// modified in place; updates replace the object, which keeps earlier
// snapshots intact.
type Registry struct {
	db *memdb.MemDB
}

// New creates an empty Registry.
func New() (*Registry, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("create pearl registry: %w", err)
	}
	return &Registry{db: db}, nil
}

// Load replaces the registry contents with pearls. Entries not present in
// pearls are dropped. A batch with a missing or duplicate id is rejected as a
// whole and leaves the registry untouched.
func (r *Registry) Load(pearls []pearl.Pearl) error {
	seen := make(map[uuid.UUID]bool, len(pearls))
	for _, p := range pearls {
		if p.PlayerID == uuid.Nil {
			return fmt.Errorf("load pearls: missing player id: %w", pearl.ErrInvalidArgument)
		}
		if seen[p.PlayerID] {
			return fmt.Errorf("load pearls: duplicate player %s: %w", p.PlayerID, pearl.ErrInvalidArgument)
		}
		seen[p.PlayerID] = true
	}

	txn := r.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(tableName, indexID); err != nil {
		return fmt.Errorf("load pearls: clear: %w", err)
	}
	for _, p := range pearls {
		if err := txn.Insert(tableName, &p); err != nil {
			return fmt.Errorf("load pearls: insert %s: %w", p.PlayerID, err)
		}
	}
	txn.Commit()
	return nil
}

// All returns a snapshot of every active pearl ordered by player id.
// The slice is owned by the caller.
func (r *Registry) All() []pearl.Pearl {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableName, indexID)
	if err != nil {
		return nil
	}
	return collect(it)
}

// ByID returns the active pearl for the player, if any.
func (r *Registry) ByID(id uuid.UUID) (pearl.Pearl, bool) {
	return r.first(indexID, id)
}

// ByName returns an active pearl whose player name matches, ignoring case.
func (r *Registry) ByName(name string) (pearl.Pearl, bool) {
	if name == "" {
		return pearl.Pearl{}, false
	}
	return r.first(indexName, name)
}

// ByNamePrefix returns the active pearls whose player names start with
// prefix, ignoring case.
func (r *Registry) ByNamePrefix(prefix string) []pearl.Pearl {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableName, indexName+"_prefix", prefix)
	if err != nil {
		return nil
	}
	return collect(it)
}

// IsActive reports whether the player currently has a pearl.
func (r *Registry) IsActive(id uuid.UUID) bool {
	_, ok := r.ByID(id)
	return ok
}

// Len returns the number of active pearls without copying them.
func (r *Registry) Len() int {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableName, indexID)
	if err != nil {
		return 0
	}
	n := 0
	for raw := it.Next(); raw != nil; raw = it.Next() {
		n++
	}
	return n
}

// Insert adds a new pearl to both indexes.
func (r *Registry) Insert(p pearl.Pearl) error {
	if p.PlayerID == uuid.Nil {
		return fmt.Errorf("insert pearl: missing player id: %w", pearl.ErrInvalidArgument)
	}

	txn := r.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tableName, indexID, p.PlayerID)
	if err != nil {
		return fmt.Errorf("insert pearl: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("insert pearl %s: %w", p.PlayerID, ErrAlreadyActive)
	}
	if err := txn.Insert(tableName, &p); err != nil {
		return fmt.Errorf("insert pearl %s: %w", p.PlayerID, err)
	}
	txn.Commit()
	return nil
}

// Update replaces the state of an active pearl.
func (r *Registry) Update(p pearl.Pearl) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tableName, indexID, p.PlayerID)
	if err != nil {
		return fmt.Errorf("update pearl: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("update pearl %s: %w", p.PlayerID, ErrNotActive)
	}
	if err := txn.Insert(tableName, &p); err != nil {
		return fmt.Errorf("update pearl %s: %w", p.PlayerID, err)
	}
	txn.Commit()
	return nil
}

// Remove deletes the player's pearl from both indexes.
func (r *Registry) Remove(id uuid.UUID) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tableName, indexID, id)
	if err != nil {
		return fmt.Errorf("remove pearl: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("remove pearl %s: %w", id, ErrNotActive)
	}
	if err := txn.Delete(tableName, existing); err != nil {
		return fmt.Errorf("remove pearl %s: %w", id, err)
	}
	txn.Commit()
	return nil
}

func (r *Registry) first(index string, arg interface{}) (pearl.Pearl, bool) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableName, index, arg)
	if err != nil || raw == nil {
		return pearl.Pearl{}, false
	}
	p, ok := raw.(*pearl.Pearl)
	if !ok {
		return pearl.Pearl{}, false
	}
	return *p, true
}

func collect(it memdb.ResultIterator) []pearl.Pearl {
	out := []pearl.Pearl{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		if p, ok := raw.(*pearl.Pearl); ok {
			out = append(out, *p)
		}
	}
	return out
}
