// Package agent implements the collection agent: the context that turns extracted candidates into submitted
// records.
//
// An [Agent] keeps a working copy of one namespace, loaded from the broker when it attaches and refreshed on a
// timer. Collecting moves it from idle to collecting and back. Each pass takes candidates from a
// [services.Extractor], drops invalid and already-seen ones, appends the rest to the working copy and submits the
// full snapshot after every append. A submission is retried with a fixed delay until the broker accepts it and a
// read-back shows a non-empty namespace.
//
// Stopping is cooperative: the stop flag is checked before each candidate and an in-flight submission is allowed
// to finish.
//
// When the broker cannot be reached the agent falls back to reading the record store directly, if one was
// configured. A failed liveness probe means the channel to the broker is gone; the agent reconnects and reloads its
// own state without touching the broker.
package agent
