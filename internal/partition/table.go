package partition

import (
	"errors"
	"fmt"
	"sync"
)

// Table records which endpoint owns each partition of a service
type Table struct {
	mu        sync.RWMutex
	endpoints map[int]string
	count     int
}

// NewTable creates an empty assignment table for count partitions
func NewTable(count int) *Table {
	return &Table{
		endpoints: make(map[int]string),
		count:     count,
	}
}

// Assign sets the owner endpoint of a partition
func (t *Table) Assign(partition int, endpoint string) error {
	if partition < 0 || partition >= t.count {
		return fmt.Errorf("invalid partition %d, must be in range [0, %d)", partition, t.count)
	}
	if endpoint == "" {
		return errors.New("endpoint cannot be empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.endpoints[partition] = endpoint
	return nil
}

// Unassign removes a partition's owner
func (t *Table) Unassign(partition int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.endpoints, partition)
}

// Endpoint returns the owner endpoint of a partition
func (t *Table) Endpoint(partition int) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ep, ok := t.endpoints[partition]
	return ep, ok
}

// Rebalance spreads all partitions round-robin over endpoints
func (t *Table) Rebalance(endpoints []string) error {
	if len(endpoints) == 0 {
		return errors.New("cannot rebalance with no endpoints")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for p := 0; p < t.count; p++ {
		t.endpoints[p] = endpoints[p%len(endpoints)]
	}
	return nil
}

// PartitionsOf returns the partitions assigned to endpoint
func (t *Table) PartitionsOf(endpoint string) []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []int
	for p := 0; p < t.count; p++ {
		if t.endpoints[p] == endpoint {
			out = append(out, p)
		}
	}
	return out
}
