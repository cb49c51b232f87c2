//go:build integration

// Package containers starts the backing services integration tests run against.
// Containers are shared per test binary and reaped by Ryuk when it exits.
package containers

import "sync"

// Manager lazily starts one container per service and hands it to every suite.
type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	redis    *RedisContainer
	kafka    *KafkaContainer
}

var (
	manager     *Manager
	managerOnce sync.Once
)

// GetManager returns the process-wide container manager.
func GetManager() *Manager {
	managerOnce.Do(func() {
		manager = &Manager{}
	})
	return manager
}
