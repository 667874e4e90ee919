package graphql

import (
	"strconv"

	"github.com/0xmhha/predict-indexer/internal/model"
)

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func amount(v string) string {
	if v == "" {
		return "0"
	}
	return v
}

// syncInfoToMap converts sync progress to a GraphQL-compatible map
func syncInfoToMap(info model.SyncInfo) map[string]interface{} {
	return map[string]interface{}{
		"syncBlockNum":  u64(info.SyncBlockNum),
		"syncBlockTime": u64(info.SyncBlockTime),
		"syncPercent":   info.SyncPercent,
	}
}

// entry is one leaderboard row; EventAddress is empty for global rows
type entry struct {
	EventAddress string
	UserAddress  string
	Investments  string
	Winnings     string
	ReturnRatio  string
}

func eventEntries(rows []*model.EventLeaderboard) []entry {
	out := make([]entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, entry{
			EventAddress: r.EventAddress,
			UserAddress:  r.UserAddress,
			Investments:  r.Investments,
			Winnings:     r.Winnings,
			ReturnRatio:  r.ReturnRatio,
		})
	}
	return out
}

func globalEntries(rows []*model.GlobalLeaderboard) []entry {
	out := make([]entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, entry{
			UserAddress: r.UserAddress,
			Investments: r.Investments,
			Winnings:    r.Winnings,
			ReturnRatio: r.ReturnRatio,
		})
	}
	return out
}

func entryToMap(e entry, names map[string]string) map[string]interface{} {
	m := map[string]interface{}{
		"userAddress": e.UserAddress,
		"investments": amount(e.Investments),
		"winnings":    amount(e.Winnings),
		"returnRatio": amount(e.ReturnRatio),
	}
	if e.EventAddress != "" {
		m["eventAddress"] = e.EventAddress
	}
	if name, ok := names[e.UserAddress]; ok {
		m["userName"] = name
	}
	return m
}

// eventToMap converts an event to a GraphQL-compatible map
func eventToMap(ev *model.Event) map[string]interface{} {
	m := map[string]interface{}{
		"txid":               ev.TxID,
		"txStatus":           string(ev.TxStatus),
		"blockNum":           u64(ev.BlockNum),
		"version":            int(ev.Version),
		"name":               ev.Name,
		"results":            ev.Results,
		"numOfResults":       int(ev.NumOfResults),
		"betStartTime":       u64(ev.BetStartTime),
		"betEndTime":         u64(ev.BetEndTime),
		"resultSetStartTime": u64(ev.ResultSetStartTime),
		"resultSetEndTime":   u64(ev.ResultSetEndTime),
		"escrowAmount":       amount(ev.EscrowAmount),
		"currentRound":       int(ev.CurrentRound),
		"currentResultIndex": int(ev.CurrentResultIndex),
		"consensusThreshold": amount(ev.ConsensusThreshold),
		"arbitrationEndTime": u64(ev.ArbitrationEndTime),
		"status":             string(ev.Status),
	}
	if ev.Address != "" {
		m["address"] = ev.Address
	}
	if ev.OwnerAddress != "" {
		m["ownerAddress"] = ev.OwnerAddress
	}
	if ev.CentralizedOracle != "" {
		m["centralizedOracle"] = ev.CentralizedOracle
	}
	if ev.Language != "" {
		m["language"] = ev.Language
	}
	return m
}
