// Package display implements the pull-only display client and the filtering applied to what it shows.
//
// A [Client] never merges records. It reads the broker's snapshot on a fixed period and whenever [Client.Focus]
// is called, and treats the reply to clearData, collect and stop as a cue to read again rather than as the new
// state. When a read fails the previous snapshot is kept and marked stale.
//
// [Filter] narrows and orders a saved list: substring filters per field, a phone-only switch, a boolean expr
// expression over the record fields, a fuzzy username query and a sort key.
package display
