// Package partition maps entity keys onto partitions and partitions onto
// the endpoints that currently own them.
package partition

import (
	"github.com/cespare/xxhash/v2"
)

// Service names one of the two partitioned stores
type Service string

const (
	ServicePlayers Service = "players"
	ServiceRooms   Service = "rooms"
)

// Router hashes keys onto a fixed number of partitions. Both sides of every
// call must be configured with the same count.
type Router struct {
	count int
}

// NewRouter creates a router over count partitions (minimum 1)
func NewRouter(count int) Router {
	if count < 1 {
		count = 1
	}
	return Router{count: count}
}

// Of returns the partition owning key
func (r Router) Of(key string) int {
	return int(xxhash.Sum64String(key) % uint64(r.count))
}

// Count returns the number of partitions
func (r Router) Count() int {
	return r.count
}

// All returns every partition id in ascending order
func (r Router) All() []int {
	ids := make([]int, r.count)
	for i := range ids {
		ids[i] = i
	}
	return ids
}
