package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/config"
	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
)

// ActivityService merges the event tables of a contract into one feed
type ActivityService struct {
	contracts repositories.ContractRepository
	transfers repositories.TransferRepository
	allowlist repositories.AllowlistRepository
	actions   repositories.CorporateActionRepository
	config    config.APIConfig
	logger    *zap.Logger
}

// NewActivityService creates a new activity service
func NewActivityService(
	contracts repositories.ContractRepository,
	transfers repositories.TransferRepository,
	allowlist repositories.AllowlistRepository,
	actions repositories.CorporateActionRepository,
	cfg config.APIConfig,
	logger *zap.Logger,
) *ActivityService {
	return &ActivityService{
		contracts: contracts,
		transfers: transfers,
		allowlist: allowlist,
		actions:   actions,
		config:    cfg,
		logger:    logger,
	}
}

// ActivityResponse is the API response for activity queries
type ActivityResponse struct {
	Data []entities.ActivityEvent `json:"data"`
}

// GetRecentActivity returns the newest events of a contract across all
// kinds, or of one kind when kind is set. A nil response means the contract
// is not registered.
func (s *ActivityService) GetRecentActivity(ctx context.Context, contractAddress string, kind *entities.EventKind, limit int) (*ActivityResponse, error) {
	contract, err := s.contracts.GetByAddress(ctx, contractAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to check contract: %w", err)
	}
	if contract == nil {
		return nil, nil
	}

	filter := entities.DefaultActivityFilter(contract.ID)
	filter.Kind = kind
	if limit > 0 {
		filter.Limit = limit
	}
	if s.config.MaxActivityLimit > 0 && filter.Limit > s.config.MaxActivityLimit {
		filter.Limit = s.config.MaxActivityLimit
	}

	events, err := s.collect(ctx, filter)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].NewerThan(events[j]) })
	if len(events) > filter.Limit {
		events = events[:filter.Limit]
	}

	return &ActivityResponse{Data: events}, nil
}

// collect reads up to filter.Limit rows from every included table
func (s *ActivityService) collect(ctx context.Context, filter entities.ActivityFilter) ([]entities.ActivityEvent, error) {
	var events []entities.ActivityEvent
	id, limit := filter.ContractID, filter.Limit

	if filter.Includes(entities.EventKindTransfer) {
		transfers, err := s.transfers.ListRecent(ctx, id, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list transfers: %w", err)
		}
		for _, t := range transfers {
			events = append(events, entities.ActivityEvent{
				Kind:           entities.EventKindTransfer,
				BlockNumber:    t.BlockNumber,
				BlockTimestamp: t.BlockTimestamp,
				TxHash:         t.TxHash,
				LogIndex:       t.LogIndex,
				From:           t.From,
				To:             t.To,
				Amount:         t.Amount.String(),
			})
		}
	}

	if filter.Includes(entities.EventKindAllowlistAdd) {
		adds, err := s.allowlist.ListRecentAdds(ctx, id, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list allowlist adds: %w", err)
		}
		for _, a := range adds {
			events = append(events, entities.ActivityEvent{
				Kind:           entities.EventKindAllowlistAdd,
				BlockNumber:    a.AddedAtBlock,
				BlockTimestamp: a.AddedAt,
				TxHash:         a.TxHash,
				LogIndex:       logIndexAt(a, a.AddedAtBlock),
				Address:        a.Address,
			})
		}
	}

	if filter.Includes(entities.EventKindAllowlistRemove) {
		removals, err := s.allowlist.ListRecentRemovals(ctx, id, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list allowlist removals: %w", err)
		}
		for _, a := range removals {
			if a.RemovedAtBlock == nil || a.RemovedAt == nil {
				continue
			}
			ev := entities.ActivityEvent{
				Kind:           entities.EventKindAllowlistRemove,
				BlockNumber:    *a.RemovedAtBlock,
				BlockTimestamp: *a.RemovedAt,
				LogIndex:       logIndexAt(a, *a.RemovedAtBlock),
				Address:        a.Address,
			}
			if a.RemovedTxHash != nil {
				ev.TxHash = *a.RemovedTxHash
			}
			events = append(events, ev)
		}
	}

	if filter.Includes(entities.EventKindStockSplit) {
		splits, err := s.actions.ListRecentStockSplits(ctx, id, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list stock splits: %w", err)
		}
		for _, sp := range splits {
			events = append(events, entities.ActivityEvent{
				Kind:           entities.EventKindStockSplit,
				BlockNumber:    sp.BlockNumber,
				BlockTimestamp: sp.BlockTimestamp,
				TxHash:         sp.TxHash,
				LogIndex:       sp.LogIndex,
				Details: map[string]string{
					"multiplier":       sp.Multiplier.String(),
					"new_total_supply": sp.NewTotalSupply.String(),
				},
			})
		}
	}

	if filter.Includes(entities.EventKindMetadataChange) {
		changes, err := s.actions.ListRecentMetadataChanges(ctx, id, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list metadata changes: %w", err)
		}
		for _, m := range changes {
			events = append(events, entities.ActivityEvent{
				Kind:           entities.EventKindMetadataChange,
				BlockNumber:    m.BlockNumber,
				BlockTimestamp: m.BlockTimestamp,
				TxHash:         m.TxHash,
				LogIndex:       m.LogIndex,
				Details: map[string]string{
					"old_name":   m.OldName,
					"new_name":   m.NewName,
					"old_symbol": m.OldSymbol,
					"new_symbol": m.NewSymbol,
				},
			})
		}
	}

	if filter.Includes(entities.EventKindBuyback) {
		buybacks, err := s.actions.ListRecentBuybacks(ctx, id, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list buybacks: %w", err)
		}
		for _, b := range buybacks {
			events = append(events, entities.ActivityEvent{
				Kind:           entities.EventKindBuyback,
				BlockNumber:    b.BlockNumber,
				BlockTimestamp: b.BlockTimestamp,
				TxHash:         b.TxHash,
				LogIndex:       b.LogIndex,
				Address:        b.Holder,
				Amount:         b.Amount.String(),
			})
		}
	}

	return events, nil
}

// logIndexAt returns the log index of the row's transition at block when it
// is the last one recorded. The allowlist row keeps only that one.
func logIndexAt(e entities.AllowlistEntry, block int64) int {
	if e.LastEventBlock == block {
		return e.LastEventLogIndex
	}
	return 0
}
