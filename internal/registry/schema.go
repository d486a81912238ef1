package registry

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"

	"github.com/Maxopoly/ExilePearl/internal/pearl"
)

const (
	tableName = "pearl" // also, memdb schema name

	indexID   = "id"
	indexName = "name"
)

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableName: {
				Name: tableName,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: playerIDIndex{},
					},
					// Names are denormalized and may go stale, so two entries can
					// briefly share one. Non-unique keeps both indexed.
					indexName: {
						Name:         indexName,
						AllowMissing: true,
						Indexer: &memdb.StringFieldIndex{
							Field:     "PlayerName",
							Lowercase: true,
						},
					},
				},
			},
		},
	}
}

// playerIDIndex indexes *pearl.Pearl by the raw bytes of PlayerID.
// memdb's UUIDFieldIndex only understands string fields.
type playerIDIndex struct{}

func (playerIDIndex) FromObject(raw interface{}) (bool, []byte, error) {
	p, ok := raw.(*pearl.Pearl)
	if !ok {
		return false, nil, fmt.Errorf("cannot index %T as pearl", raw)
	}
	if p.PlayerID == uuid.Nil {
		return false, nil, nil
	}
	key := make([]byte, len(p.PlayerID))
	copy(key, p.PlayerID[:])
	return true, key, nil
}

func (playerIDIndex) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("must provide only a single argument")
	}
	id, ok := args[0].(uuid.UUID)
	if !ok {
		return nil, fmt.Errorf("argument must be a uuid.UUID: %#v", args[0])
	}
	key := make([]byte, len(id))
	copy(key, id[:])
	return key, nil
}
