// Package memrec implements an in-memory record store.
//
// Records are distributed over a fixed number of shards, each backed by a
// concurrent map keyed by a seeded FNV-1a hash of the record address. All
// single-record operations run inside the map's atomic compute for that key,
// which is what gives Update/View/Scan their per-record atomicity.
//
// Native whole-record expiration is handled by one reaper goroutine per
// shard: writes that set a deadline publish an event to the shard's event
// channel, the reaper keeps the deadlines in a min-heap and physically
// removes records once their deadline passes. Because a record can be
// rewritten between the time its deadline is queued and the time it pops,
// the reaper re-checks the deadline under the record's atomic compute before
// deleting anything.
//
// Scans walk all shards in a background goroutine and apply the scan
// function to every record of the requested namespace/set, one record at a
// time under that record's atomicity. There is no ordering or isolation
// guarantee across records; a failed record is counted and skipped.
package memrec
