// Package broker is the long-lived synchronization broker.
//
// The broker owns the authoritative in-memory copy of every namespace, merges snapshots submitted by agents, and
// persists them to a [repositories.RecordStore].
//
// # Namespaces
//
// A [Registry] holds one [Partition] per [models.Version]. Operations on one namespace never read or write another,
// and operations on the same namespace are serialized by the partition locks.
//
// # Persistence
//
// Writes reach the store three ways:
//
//  1. [Broker.SaveData] updates memory synchronously and schedules a coalesced durable write.
//  2. A timer flushes every namespace with a non-empty saved list every [Options.FlushInterval].
//  3. [Broker.ClearData] removes the durable keys immediately.
//
// Every flush is verified by reading the namespace back. A failed write or an absent or empty read-back is retried
// after [Options.RetryDelay] until it succeeds or the broker shuts down. Retries always write the current cache,
// and a clear that lands while a flush is in progress wins: cleared records are never written back.
//
// # Protocol
//
// [Broker.Handle] serves saveData, getSavedData, clearData, downloadTXT and updateProgress requests and reports
// every outcome, including failures, as a response. Progress notifications are relayed to [Broker.Subscribe]rs.
package broker
