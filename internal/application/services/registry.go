package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
)

// Registry is the set of contracts currently being watched, keyed by
// lower-cased address
type Registry struct {
	contracts repositories.ContractRepository
	logger    *zap.Logger

	mu      sync.Mutex
	watched map[string]*entities.Contract
}

// NewRegistry creates an empty registry
func NewRegistry(contracts repositories.ContractRepository, logger *zap.Logger) *Registry {
	return &Registry{
		contracts: contracts,
		logger:    logger,
		watched:   make(map[string]*entities.Contract),
	}
}

// LoadActive replaces the watched set with every active contract
func (r *Registry) LoadActive(ctx context.Context) ([]*entities.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active, err := r.listActive(ctx)
	if err != nil {
		return nil, err
	}

	r.watched = active
	return sortedContracts(active), nil
}

// RefreshNew returns contracts that became active since the last call.
// Calling it again without registry changes returns nothing.
func (r *Registry) RefreshNew(ctx context.Context) ([]*entities.Contract, error) {
	added, _, err := r.Refresh(ctx)
	return added, err
}

// Refresh diffs the active contracts against the watched set and returns
// what was added and what was deactivated
func (r *Registry) Refresh(ctx context.Context) (added, removed []*entities.Contract, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active, err := r.listActive(ctx)
	if err != nil {
		return nil, nil, err
	}

	for addr, c := range active {
		if _, ok := r.watched[addr]; !ok {
			added = append(added, c)
		}
	}
	for addr, c := range r.watched {
		if _, ok := active[addr]; !ok {
			removed = append(removed, c)
		}
	}

	r.watched = active

	if len(added) > 0 || len(removed) > 0 {
		r.logger.Info("Registry changed",
			zap.Int("added", len(added)),
			zap.Int("removed", len(removed)),
			zap.Int("watched", len(active)),
		)
	}

	return sortContracts(added), sortContracts(removed), nil
}

// Get returns a watched contract by address
func (r *Registry) Get(address string) *entities.Contract {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watched[entities.NormalizeAddress(address)]
}

// Watched returns a snapshot of the watched contracts ordered by id
func (r *Registry) Watched() []*entities.Contract {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedContracts(r.watched)
}

func (r *Registry) listActive(ctx context.Context) (map[string]*entities.Contract, error) {
	list, err := r.contracts.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active contracts: %w", err)
	}

	active := make(map[string]*entities.Contract, len(list))
	for i := range list {
		c := list[i]
		c.Address = entities.NormalizeAddress(c.Address)
		active[c.Address] = &c
	}
	return active, nil
}

func sortedContracts(m map[string]*entities.Contract) []*entities.Contract {
	out := make([]*entities.Contract, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return sortContracts(out)
}

func sortContracts(list []*entities.Contract) []*entities.Contract {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
