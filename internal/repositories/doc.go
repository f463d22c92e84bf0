// Package repositories implements durable persistence for namespace snapshots.
//
// Storage is a flat key/value area: each [models.Version] owns two keys, one holding the array of collected ids
// and one holding the array of saved records. [SnapshotRepository] maps versions onto those keys and implements
// [RecordStore] over any [KVStore] backend.
//
// Key Implementations:
//   - [SQLiteKV] : storage_entries table managed by the embedded migrations
//   - [PostgresKV] : same layout on PostgreSQL, created lazily on first use
//   - [FileKV] : one JSON document replaced atomically, with a [Watcher] change feed
//   - [MemoryKV] : process-local map, used in tests and for throwaway brokers
//
// [Open] selects a backend from a DSN such as "sqlite://leadsync.db", "postgres://..." or "file://leads.json".
package repositories
