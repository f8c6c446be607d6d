package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mcoot/partyroom/internal/model"
)

// Provider hands out the store of an owned partition
type Provider interface {
	Store(partition int) (Store, error)
}

// Opener creates the store for one partition
type Opener func(ctx context.Context, partition int) (Store, error)

// Host is the set of partitions of one service that this process owns
type Host struct {
	service string
	open    Opener
	logger  *slog.Logger

	mu     sync.RWMutex
	stores map[int]Store
}

// NewHost creates a host that owns no partitions yet
func NewHost(service string, open Opener, logger *slog.Logger) *Host {
	return &Host{
		service: service,
		open:    open,
		logger:  logger,
		stores:  make(map[int]Store),
	}
}

// Acquire opens and claims a partition. Acquiring an owned partition is a no-op.
func (h *Host) Acquire(ctx context.Context, partition int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.stores[partition]; ok {
		return nil
	}

	s, err := h.open(ctx, partition)
	if err != nil {
		return fmt.Errorf("opening %s partition %d: %w", h.service, partition, err)
	}
	if err := s.Claim(ctx); err != nil {
		_ = s.Close()
		return fmt.Errorf("claiming %s partition %d: %w", h.service, partition, err)
	}

	h.stores[partition] = s
	h.logger.Info("partition acquired", "service", h.service, "partition", partition)
	return nil
}

// Release disowns and closes a partition
func (h *Host) Release(ctx context.Context, partition int) error {
	h.mu.Lock()
	s, ok := h.stores[partition]
	delete(h.stores, partition)
	h.mu.Unlock()

	if !ok {
		return nil
	}

	err := errors.Join(s.Disown(ctx), s.Close())
	h.logger.Info("partition released", "service", h.service, "partition", partition)
	return err
}

// Store returns the owned store for partition, or model.ErrNotOwner
func (h *Host) Store(partition int) (Store, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.stores[partition]
	if !ok {
		return nil, fmt.Errorf("%w: %s partition %d", model.ErrNotOwner, h.service, partition)
	}
	return s, nil
}

// Partitions lists the owned partitions in ascending order
func (h *Host) Partitions() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ps := make([]int, 0, len(h.stores))
	for p := range h.stores {
		ps = append(ps, p)
	}
	sort.Ints(ps)
	return ps
}

// Close releases every partition
func (h *Host) Close(ctx context.Context) error {
	var errs []error
	for _, p := range h.Partitions() {
		errs = append(errs, h.Release(ctx, p))
	}
	return errors.Join(errs...)
}
