package models

import (
	"time"
)

// Record is a row of the history database. Repositories assign the ID and the sequence
// number on create; everything else is owned by the record.
type Record interface {
	ID() string
	Sequence() int
	SetID(id string)
	SetSequence(seq int)
	CreatedAt() time.Time
	UpdatedAt() time.Time
	Validate() error
}

// Repository is the storage contract shared by history tables. Delete is a soft delete:
// Get and List skip deleted rows.
type Repository[T Record] interface {
	Create(record T) error
	Get(id string) (T, error)
	Update(record T) error
	Delete(id string) error
	List(criteria map[string]any) ([]T, error)
}

var _ Record = (*SyncRun)(nil)
