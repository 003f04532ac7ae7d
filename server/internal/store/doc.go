// Package store holds the aggregator's in-memory records: the latest Reading
// from each source identity, stamped with the Lamport clock value it was
// accepted at and its wall-clock arrival time.
//
// Keys are spread over a fixed set of shards (FNV-1a hash), each with its own
// lock, so upserts for different identities do not contend and an eviction
// pass never stalls publishes for longer than one shard scan. Upsert and
// eviction of the same identity serialise on that identity's shard.
package store
