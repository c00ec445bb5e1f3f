// Package record defines the abstraction for a record store: a key-value
// store whose values are records, i.e. named fields ("bins") addressed by a
// (namespace, set, key) triple.
//
// The interface is deliberately small. A store must guarantee atomicity for
// operations on a single record (Update runs its callback under the record's
// own serialization) and must offer a scan primitive that applies a function
// to every record of a namespace/set in the background. No cross-record
// transaction of any kind is part of the contract.
//
// Whole-record expiration is native to the store (ExpireIn); sub-record
// expiration is not. Field-level TTL semantics are layered on top of this
// interface by the expbin package.
package record
