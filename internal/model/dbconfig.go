package model

import "time"

// DBConfig is the tiny key/value table holding the schema version and the
// distributed lock token. Only the lock row is modeled explicitly here;
// the schema version is owned by the migration runner (internal/store).
type DBConfig struct {
	Key      string
	Value    string
	Modified time.Time
}

// LockKey is the well-known DBConfig.Key used for the distributed lock
// described in spec section 4.1 ("Distributed lock").
const LockKey = "read_lock"

// LockLease is the maximum time a lock holder may retain the lock before
// another process may force-seize it.
const LockLease = 10 * time.Second
