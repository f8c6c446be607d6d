package partition

import (
	"context"
	"fmt"

	"github.com/mcoot/partyroom/internal/model"
)

// Resolver maps a logical partition to a reachable endpoint. Callers
// invalidate an entry when the endpoint answers NotOwner or is unreachable,
// and resolve again before retrying.
type Resolver interface {
	Resolve(ctx context.Context, service Service, partition int) (string, error)
	Invalidate(service Service, partition int)
}

// StaticResolver resolves from fixed per-service tables
type StaticResolver struct {
	tables map[Service]*Table
}

// NewStaticResolver creates a resolver over the given tables
func NewStaticResolver(tables map[Service]*Table) *StaticResolver {
	return &StaticResolver{tables: tables}
}

// Resolve returns the configured endpoint
func (r *StaticResolver) Resolve(_ context.Context, service Service, partition int) (string, error) {
	t, ok := r.tables[service]
	if !ok {
		return "", fmt.Errorf("no partition table for service %q", service)
	}
	ep, ok := t.Endpoint(partition)
	if !ok {
		return "", fmt.Errorf("%w: %s partition %d has no endpoint", model.ErrNotOwner, service, partition)
	}
	return ep, nil
}

// Invalidate is a no-op; static tables never change underneath the caller
func (r *StaticResolver) Invalidate(Service, int) {}

// PartitionsOf lists the partitions of service assigned to endpoint
func (r *StaticResolver) PartitionsOf(service Service, endpoint string) []int {
	t, ok := r.tables[service]
	if !ok {
		return nil
	}
	return t.PartitionsOf(endpoint)
}
