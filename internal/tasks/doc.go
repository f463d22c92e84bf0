// Package tasks runs long operations over the collected dataset and reports their progress.
//
// # Progress Reporting
//
// Operations emit [ProgressUpdate] values on an optional channel. [SendProgress] uses select with default, so a
// slow or absent reader never stalls the operation; consumers that need every update must keep up.
//
// The collection agent emits [Load], [Extract], [Submit] and [Verify] phases while collecting; bulk exports emit
// [FetchSnapshot] and [ExportSnapshot].
//
// # Bulk Export
//
// [ExportEngine.BulkExport] expands a set of namespaces and formats into jobs and runs them on a worker pool.
// Snapshot reads are paced by a rate limiter, each job writes one file, and a manifest summarizing every job is
// written next to the exports. A failed job does not stop the others.
package tasks
