// Package expbin implements per-bin time-to-live semantics ("expirable
// bins") on top of a record store that natively only expires whole records.
//
// The record store knows nothing about bin-level expiration. Instead, every
// record carries one reserved metadata bin holding an encoded mapping from
// bin name to absolute expiration timestamp. A bin with a metadata entry is
// an expire bin: once its timestamp passes it is logically invisible to all
// reads, even while it is still physically stored. A bin without a metadata
// entry is a normal bin and never expires.
//
// The package only ever stores through the record.IRecordStore interface and
// keeps no state of its own, so any number of Module instances may be
// created on the same store.
//
// Expiration is enforced in two places:
//
//   - Lazily on read: Get and BinTTL consult the metadata and hide expired
//     bins, without writing anything.
//   - Physically by the sweep: Clean removes expired bins and their metadata
//     from one record in a single atomic update, and the Sweeper drives
//     Clean across a whole namespace/set via the store's background scan.
//
// Each operation is one atomic update (or view) of a single record; the
// store's single-record serialization is the only consistency boundary.
// Batch operations (Puts, Touch) therefore commit all-or-nothing within
// their record, and report a single aggregate status.
package expbin
