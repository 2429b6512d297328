package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
)

type MockCall struct {
	Method string
	Args   []interface{}
}

// FakeChain is an in-memory event source. Events are emitted per contract
// address and served by block range like a node would.
type FakeChain struct {
	mu     sync.Mutex
	height uint64
	events map[string][]entities.LedgerEvent

	// PollInterval is how often subscriptions poll
	PollInterval time.Duration

	// Function hooks for custom behavior
	GetLogsFunc            func(ctx context.Context, address string, kind entities.EventKind, from, to int64) ([]entities.LedgerEvent, error)
	CurrentBlockHeightFunc func(ctx context.Context) (uint64, error)

	// Call tracking
	Calls []MockCall
}

func NewFakeChain(height uint64) *FakeChain {
	return &FakeChain{
		height:       height,
		events:       make(map[string][]entities.LedgerEvent),
		PollInterval: 5 * time.Millisecond,
	}
}

// Emit records events emitted by the contract at address
func (c *FakeChain) Emit(address string, events ...entities.LedgerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := entities.NormalizeAddress(address)
	for _, ev := range events {
		ev = ev.WithContract(0)
		if m := ev.Meta(); m != nil {
			m.ContractAddress = key
		}
		c.events[key] = append(c.events[key], ev)
	}
}

// SetHeight moves the chain head
func (c *FakeChain) SetHeight(height uint64) {
	c.mu.Lock()
	c.height = height
	c.mu.Unlock()
}

// GetLogCalls returns how many GetLogs calls were made
func (c *FakeChain) GetLogCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, call := range c.Calls {
		if call.Method == "GetLogs" {
			n++
		}
	}
	return n
}

func (c *FakeChain) GetLogs(ctx context.Context, address string, kind entities.EventKind, from, to int64) ([]entities.LedgerEvent, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, MockCall{Method: "GetLogs", Args: []interface{}{address, kind, from, to}})
	hook := c.GetLogsFunc
	c.mu.Unlock()

	if hook != nil {
		return hook(ctx, address, kind, from, to)
	}
	return c.logs(address, kind, from, to), nil
}

func (c *FakeChain) logs(address string, kind entities.EventKind, from, to int64) []entities.LedgerEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []entities.LedgerEvent
	for _, ev := range c.events[entities.NormalizeAddress(address)] {
		if ev.Kind != kind {
			continue
		}
		block, _ := ev.SortKey()
		if block < from || block > to {
			continue
		}
		out = append(out, ev)
	}

	sort.SliceStable(out, func(i, j int) bool {
		bi, li := out[i].SortKey()
		bj, lj := out[j].SortKey()
		if bi != bj {
			return bi < bj
		}
		return li < lj
	})
	return out
}

func (c *FakeChain) SubscribeLogs(
	ctx context.Context,
	address string,
	kind entities.EventKind,
	fromBlock int64,
	onLog func(ctx context.Context, event entities.LedgerEvent) error,
) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(c.PollInterval)
		defer ticker.Stop()

		next := fromBlock
		for {
			head, err := c.CurrentBlockHeight(ctx)
			if err == nil && int64(head) >= next {
				events, err := c.GetLogs(ctx, address, kind, next, int64(head))
				if err == nil {
					delivered := true
					for _, ev := range events {
						if onLog(ctx, ev) != nil {
							delivered = false
							break
						}
					}
					if delivered {
						next = int64(head) + 1
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (c *FakeChain) GetBlockTimestamp(_ context.Context, block int64) (time.Time, error) {
	return BlockTime(block), nil
}

func (c *FakeChain) CurrentBlockHeight(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	hook := c.CurrentBlockHeightFunc
	height := c.height
	c.mu.Unlock()

	if hook != nil {
		return hook(ctx)
	}
	return height, nil
}

// MockContractRepository is a mock implementation of ContractRepository
type MockContractRepository struct {
	mu        sync.RWMutex
	contracts map[int64]*entities.Contract
	nextID    int64

	// Function hooks for custom behavior
	ListActiveFunc func(ctx context.Context) ([]entities.Contract, error)

	// Call tracking
	Calls []MockCall
}

var _ repositories.ContractRepository = (*MockContractRepository)(nil)

func NewMockContractRepository() *MockContractRepository {
	return &MockContractRepository{
		contracts: make(map[int64]*entities.Contract),
		Calls:     make([]MockCall, 0),
	}
}

func (m *MockContractRepository) GetByAddress(_ context.Context, address string) (*entities.Contract, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "GetByAddress", Args: []interface{}{address}})
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.contracts {
		if c.Address == entities.NormalizeAddress(address) {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockContractRepository) GetByID(_ context.Context, id int64) (*entities.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.contracts[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (m *MockContractRepository) ListActive(ctx context.Context) ([]entities.Contract, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "ListActive"})
	m.mu.Unlock()

	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []entities.Contract
	for _, c := range m.contracts {
		if c.IsActive {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockContractRepository) ListAll(_ context.Context) ([]entities.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []entities.Contract
	for _, c := range m.contracts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockContractRepository) Create(_ context.Context, contract *entities.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	contract.Address = entities.NormalizeAddress(contract.Address)
	for _, c := range m.contracts {
		if c.Address == contract.Address {
			return errors.New("duplicate contract address")
		}
	}
	m.nextID++
	contract.ID = m.nextID
	copied := *contract
	m.contracts[contract.ID] = &copied
	return nil
}

func (m *MockContractRepository) Upsert(_ context.Context, contract *entities.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *contract
	copied.Address = entities.NormalizeAddress(copied.Address)
	m.contracts[contract.ID] = &copied
	if contract.ID > m.nextID {
		m.nextID = contract.ID
	}
	return nil
}

func (m *MockContractRepository) SetActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contracts[id]
	if !ok {
		return entities.ErrContractNotFound
	}
	c.IsActive = active
	return nil
}

// AddContracts adds contracts to the mock store, assigning ids when unset
func (m *MockContractRepository) AddContracts(contracts ...*entities.Contract) {
	for _, c := range contracts {
		if c.ID == 0 {
			_ = m.Create(context.Background(), c)
			continue
		}
		_ = m.Upsert(context.Background(), c)
	}
}

// MockHealthChecker is a mock implementation of HealthChecker
type MockHealthChecker struct {
	mu      sync.Mutex
	Healthy bool
	Error   error
	Calls   []MockCall
}

func NewMockHealthChecker(healthy bool) *MockHealthChecker {
	m := &MockHealthChecker{Calls: make([]MockCall, 0)}
	m.SetHealthy(healthy)
	return m
}

func (m *MockHealthChecker) HealthCheck(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "HealthCheck"})
	return m.Error
}

func (m *MockHealthChecker) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Healthy = healthy
	if healthy {
		m.Error = nil
	} else {
		m.Error = errors.New("health check failed")
	}
}
