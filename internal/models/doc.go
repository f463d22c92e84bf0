// Package models defines the lead records and namespace snapshots shared by every leadsync context.
//
// The package contains three groups of types:
//
// 1. Records: data produced by the extractor and persisted unchanged
//   - [UserRecord] : a single lead (profile handle, contact fields, discovery time)
//
// 2. Snapshots: the unit transferred between agent, broker and store
//   - [Snapshot] : the paired (collected id set, saved list) state of one namespace
//   - [Stats] : counts derived from a snapshot for display
//
// 3. Namespaces: the isolated product tiers
//   - [Version] : basic or pro, each with its own durable key pair ([StorageKeys])
//
// [Merge] implements the id-union merge used everywhere a snapshot from another context is combined with local state:
// existing entries keep their position, unseen ids are appended in the order they arrive.
package models
