// Package audit keeps a trail of pairing outcomes and device removals in
// the audit_log table.
//
// Writes go through Trail, which never fails its caller: an audit write
// that cannot be stored is logged and dropped. Reads page through the
// table newest first.
package audit
