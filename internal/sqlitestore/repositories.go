package sqlitestore

import "github.com/memolanes/memolanes-server/internal/store"

// Repositories builds a store.Repositories backed by db.
func (db *DB) Repositories() store.Repositories {
	return store.Repositories{
		UnitOfWork:    db,
		Users:         UserRepository{},
		Snapshots:     SnapshotRepository{},
		SnapshotLogs:  SnapshotLogRepository{},
		SnapshotTasks: SnapshotTaskRepository{},
		Shares:        SnapshotShareRepository{},
	}
}
