package models

import "time"

// SyncLog records the last successful synchronization of a dataset scope.
type SyncLog struct {
	DatasetKey string    `db:"dataset_key"`
	SyncedAt   time.Time `db:"synced_at"`
	RowCount   int       `db:"row_count"`
}
