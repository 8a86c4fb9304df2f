package database

import (
	"sync"

	"github.com/CodingCaius/gedis/interface/redis"
)

// watchRegistry is the shared side of the bidirectional watch index of one
// database: key -> connections watching it. The other side is the ordered
// WatchKey list held by each connection. Both sides are created and destroyed
// together by watchKey/unwatchKey, never independently.
//
// Connections are stored under their stable ID, so a connection recycled
// after a mid-transaction disconnect can not be confused with a stale entry.
type watchRegistry struct {
	mu       sync.Mutex
	watchers map[string]map[uint64]redis.Connection
}

func makeWatchRegistry() *watchRegistry {
	return &watchRegistry{
		watchers: make(map[string]map[uint64]redis.Connection),
	}
}

// watchKey registers conn as a watcher of the given key within db.
// It is idempotent, watching the same key twice keeps a single registration.
func (db *DB) watchKey(conn redis.Connection, key string) {
	if !conn.AddWatchKey(redis.WatchKey{DB: db.index, Key: key}) {
		return // already watching
	}
	registry := db.watchedKeys
	registry.mu.Lock()
	defer registry.mu.Unlock()
	watchers, ok := registry.watchers[key]
	if !ok {
		watchers = make(map[uint64]redis.Connection)
		registry.watchers[key] = watchers
	}
	watchers[conn.ID()] = conn
}

// unwatchKey removes the registry side of one watch entry.
// The connection side is dropped in one batch by Server.unwatchAll.
// A key with no watchers left is removed from the registry entirely, so the
// registry does not grow with key churn.
func (db *DB) unwatchKey(connID uint64, key string) {
	registry := db.watchedKeys
	registry.mu.Lock()
	defer registry.mu.Unlock()
	watchers, ok := registry.watchers[key]
	if !ok {
		return
	}
	delete(watchers, connID)
	if len(watchers) == 0 {
		delete(registry.watchers, key)
	}
}

// touchWatchedKeys marks every connection watching one of the given keys as
// dirty. The write path calls it on every mutation, under the keys' locks.
func (db *DB) touchWatchedKeys(keys ...string) {
	if len(keys) == 0 {
		return
	}
	registry := db.watchedKeys
	registry.mu.Lock()
	defer registry.mu.Unlock()
	for _, key := range keys {
		for _, conn := range registry.watchers[key] {
			conn.SetDirtyCAS(true)
		}
	}
}

// hasWatchers reports whether any connection is watching the given key
func (db *DB) hasWatchers(key string) bool {
	registry := db.watchedKeys
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return len(registry.watchers[key]) > 0
}
