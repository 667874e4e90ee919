package graphql

import (
	"errors"
	"fmt"
	"sort"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/internal/constants"
	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/storage"
)

// resolveSyncInfo serves the progress last published by the sync loop. Before
// the first publication it falls back to the latest checkpoint.
func (s *Schema) resolveSyncInfo(p graphql.ResolveParams) (interface{}, error) {
	if s.deps.Sync != nil {
		if info, ok := s.deps.Sync.LatestSyncInfo(); ok {
			return syncInfoToMap(info), nil
		}
	}

	ctx := p.Context
	latest, err := s.deps.Store.LatestBlock(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return syncInfoToMap(model.SyncInfo{}), nil
	}
	if err != nil {
		s.logger.Error("failed to get latest checkpoint", zap.Error(err))
		return nil, err
	}

	head := latest.BlockNum
	if s.deps.Head != nil {
		if h, err := s.deps.Head.GetLatestBlockNumber(ctx); err == nil {
			head = h
		} else {
			s.logger.Warn("failed to get chain head", zap.Error(err))
		}
	}
	return syncInfoToMap(model.NewSyncInfo(latest.BlockNum, latest.BlockTime, head)), nil
}

// resolveLeaderboard serves global rows, or one event's rows when
// eventAddress is given, ordered by winnings
func (s *Schema) resolveLeaderboard(p graphql.ResolveParams) (interface{}, error) {
	ctx := p.Context

	var entries []entry
	if raw, ok := p.Args["eventAddress"].(string); ok && raw != "" {
		eventAddress := model.NormalizeAddress(raw)
		if eventAddress == "" {
			return nil, fmt.Errorf("invalid event address %q", raw)
		}
		rows, err := s.deps.Store.FindEventLeaderboard(ctx, eventAddress)
		if err != nil {
			s.logger.Error("failed to read event leaderboard",
				zap.String("event", eventAddress),
				zap.Error(err))
			return nil, err
		}
		entries = eventEntries(rows)
	} else {
		rows, err := s.deps.Store.ListGlobalLeaderboard(ctx)
		if err != nil {
			s.logger.Error("failed to read global leaderboard", zap.Error(err))
			return nil, err
		}
		entries = globalEntries(rows)
	}

	if raw, ok := p.Args["userAddress"].(string); ok && raw != "" {
		user := model.NormalizeAddress(raw)
		filtered := entries[:0]
		for _, e := range entries {
			if e.UserAddress == user {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	sortByWinnings(entries)

	limit, skip, err := pageParams(p.Args)
	if err != nil {
		return nil, err
	}
	entries = page(entries, limit, skip)

	var names map[string]string
	if s.deps.Names != nil && len(entries) > 0 {
		addresses := make([]string, len(entries))
		for i, e := range entries {
			addresses[i] = e.UserAddress
		}
		names = s.deps.Names.ResolveNames(ctx, addresses)
	}

	out := make([]map[string]interface{}, len(entries))
	for i, e := range entries {
		out[i] = entryToMap(e, names)
	}
	return out, nil
}

// sortByWinnings orders rows by winnings, largest first. Rows with equal
// winnings keep address order.
func sortByWinnings(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		wi, erri := model.ParseAmount(entries[i].Winnings)
		wj, errj := model.ParseAmount(entries[j].Winnings)
		if erri == nil && errj == nil && !wi.Equal(wj) {
			return wi.GreaterThan(wj)
		}
		return entries[i].UserAddress < entries[j].UserAddress
	})
}

func (s *Schema) resolveEvent(p graphql.ResolveParams) (interface{}, error) {
	raw, _ := p.Args["address"].(string)
	address := model.NormalizeAddress(raw)
	if address == "" {
		return nil, fmt.Errorf("invalid event address %q", raw)
	}

	ev, err := s.deps.Store.GetEventByAddress(p.Context, address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("failed to get event",
			zap.String("address", address),
			zap.Error(err))
		return nil, err
	}
	return eventToMap(ev), nil
}

// resolveEvents lists events, newest first
func (s *Schema) resolveEvents(p graphql.ResolveParams) (interface{}, error) {
	filter := storage.EventFilter{}
	if status, ok := p.Args["status"].(string); ok && status != "" {
		filter.Statuses = []model.EventStatus{model.EventStatus(status)}
	}
	if txStatus, ok := p.Args["txStatus"].(string); ok && txStatus != "" {
		filter.TxStatus = model.TxStatus(txStatus)
	}

	evs, err := s.deps.Store.FindEvents(p.Context, filter)
	if err != nil {
		s.logger.Error("failed to find events", zap.Error(err))
		return nil, err
	}
	sort.SliceStable(evs, func(i, j int) bool {
		return evs[i].BlockNum > evs[j].BlockNum
	})

	limit, skip, err := pageParams(p.Args)
	if err != nil {
		return nil, err
	}
	evs = page(evs, limit, skip)

	out := make([]map[string]interface{}, len(evs))
	for i, ev := range evs {
		out[i] = eventToMap(ev)
	}
	return out, nil
}

func pageParams(args map[string]interface{}) (limit, skip int, err error) {
	limit = constants.DefaultPageLimit
	if l, ok := args["limit"].(int); ok {
		if l <= 0 || l > constants.MaxPageLimit {
			return 0, 0, fmt.Errorf("limit must be between 1 and %d", constants.MaxPageLimit)
		}
		limit = l
	}
	if sk, ok := args["skip"].(int); ok {
		if sk < 0 {
			return 0, 0, fmt.Errorf("skip cannot be negative")
		}
		skip = sk
	}
	return limit, skip, nil
}

func page[T any](items []T, limit, skip int) []T {
	if skip >= len(items) {
		return nil
	}
	items = items[skip:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
