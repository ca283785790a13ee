package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net"
)

// LocalToken hashes the process's outbound local IP into a short token
// used as the distributed lock holder, mirroring the original's
// "hash of local public IP" token.
func LocalToken() string {
	ip := "unknown"
	if conn, err := net.Dial("udp", "8.8.8.8:80"); err == nil {
		ip = conn.LocalAddr().(*net.UDPAddr).IP.String()
		conn.Close()
	}
	sum := sha1.Sum([]byte(ip))
	return hex.EncodeToString(sum[:8])
}

// WithDatabaseLock runs fn while holding the coarse DBConfig.read_lock,
// unlocking afterward regardless of fn's outcome. It returns false without
// running fn if the lock could not be acquired (spec 4.1: "this coarse
// lock serializes the need_scan/bulk_lock batch and the cleanup pass").
func WithDatabaseLock(ctx context.Context, s Store, token string, fn func() error) (bool, error) {
	ok, err := s.LockDatabase(ctx, token)
	if err != nil {
		return false, fmt.Errorf("store: lock_database: %w", err)
	}
	if !ok {
		return false, nil
	}
	defer s.UnlockDatabase(ctx, token)
	return true, fn()
}
