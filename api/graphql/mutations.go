package graphql

import (
	"context"
	"strconv"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/pending"
)

// PendingService records rows for transactions a client just broadcast
type PendingService interface {
	AddPendingEvent(ctx context.Context, in pending.EventInput) (*model.Event, error)
	AddPendingBet(ctx context.Context, in pending.BetInput) (*model.Bet, error)
	AddPendingResultSet(ctx context.Context, in pending.ResultSetInput) (*model.ResultSet, error)
	AddPendingWithdraw(ctx context.Context, in pending.WithdrawInput) (*model.Withdraw, error)
	SubmitPendingTransaction(ctx context.Context, in pending.TransactionInput) (*model.PendingTransaction, error)
}

var (
	pendingRowType         *graphql.Object
	pendingTransactionType *graphql.Object
)

func initMutationTypes() {
	pendingRowType = graphql.NewObject(graphql.ObjectConfig{
		Name: "PendingRow",
		Fields: graphql.Fields{
			"txid":         &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"txStatus":     &graphql.Field{Type: graphql.NewNonNull(txStatusEnumType)},
			"txType":       &graphql.Field{Type: graphql.String},
			"blockNum":     &graphql.Field{Type: bigIntType},
			"eventAddress": &graphql.Field{Type: graphql.NewNonNull(addressType)},
		},
	})

	pendingTransactionType = graphql.NewObject(graphql.ObjectConfig{
		Name: "PendingTransaction",
		Fields: graphql.Fields{
			"txid":          &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"type":          &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"status":        &graphql.Field{Type: graphql.NewNonNull(txStatusEnumType)},
			"gasLimit":      &graphql.Field{Type: bigIntType},
			"gasPrice":      &graphql.Field{Type: bigIntType},
			"senderAddress": &graphql.Field{Type: addressType},
			"eventAddress":  &graphql.Field{Type: addressType},
		},
	})
}

func nonNull(t graphql.Input) *graphql.ArgumentConfig {
	return &graphql.ArgumentConfig{Type: graphql.NewNonNull(t)}
}

func optional(t graphql.Input) *graphql.ArgumentConfig {
	return &graphql.ArgumentConfig{Type: t}
}

// mutationType exposes the pending operations; nil when no service is wired
func (s *Schema) mutationType() *graphql.Object {
	if s.deps.Pending == nil {
		return nil
	}

	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"addPendingEvent": &graphql.Field{
				Type: graphql.NewNonNull(eventType),
				Args: graphql.FieldConfigArgument{
					"txid":               nonNull(graphql.String),
					"blockNum":           nonNull(bigIntType),
					"ownerAddress":       nonNull(addressType),
					"version":            nonNull(graphql.Int),
					"name":               nonNull(graphql.String),
					"results":            nonNull(graphql.NewList(graphql.NewNonNull(graphql.String))),
					"centralizedOracle":  nonNull(addressType),
					"betStartTime":       nonNull(bigIntType),
					"betEndTime":         nonNull(bigIntType),
					"resultSetStartTime": nonNull(bigIntType),
					"resultSetEndTime":   nonNull(bigIntType),
					"language":           optional(graphql.String),
				},
				Resolve: s.resolveAddPendingEvent,
			},
			"addPendingBet": &graphql.Field{
				Type: graphql.NewNonNull(pendingRowType),
				Args: graphql.FieldConfigArgument{
					"txid":          nonNull(graphql.String),
					"blockNum":      nonNull(bigIntType),
					"eventAddress":  nonNull(addressType),
					"betterAddress": nonNull(addressType),
					"resultIndex":   nonNull(graphql.Int),
					"amount":        nonNull(amountType),
					"eventRound":    nonNull(graphql.Int),
				},
				Resolve: s.resolveAddPendingBet,
			},
			"addPendingResultSet": &graphql.Field{
				Type: graphql.NewNonNull(pendingRowType),
				Args: graphql.FieldConfigArgument{
					"txid":                     nonNull(graphql.String),
					"blockNum":                 nonNull(bigIntType),
					"eventAddress":             nonNull(addressType),
					"centralizedOracleAddress": optional(addressType),
					"resultIndex":              nonNull(graphql.Int),
					"amount":                   nonNull(amountType),
					"eventRound":               nonNull(graphql.Int),
				},
				Resolve: s.resolveAddPendingResultSet,
			},
			"addPendingWithdraw": &graphql.Field{
				Type: graphql.NewNonNull(pendingRowType),
				Args: graphql.FieldConfigArgument{
					"txid":          nonNull(graphql.String),
					"blockNum":      nonNull(bigIntType),
					"eventAddress":  nonNull(addressType),
					"winnerAddress": nonNull(addressType),
					"winningAmount": nonNull(amountType),
					"escrowAmount":  optional(amountType),
				},
				Resolve: s.resolveAddPendingWithdraw,
			},
			"submitPendingTransaction": &graphql.Field{
				Type: graphql.NewNonNull(pendingTransactionType),
				Args: graphql.FieldConfigArgument{
					"txid":                nonNull(graphql.String),
					"type":                nonNull(graphql.String),
					"version":             nonNull(graphql.Int),
					"senderAddress":       nonNull(addressType),
					"gasLimit":            optional(bigIntType),
					"gasPrice":            optional(bigIntType),
					"createdBlock":        optional(bigIntType),
					"eventAddress":        optional(addressType),
					"name":                optional(graphql.String),
					"options":             optional(graphql.NewList(graphql.NewNonNull(graphql.String))),
					"resultSetterAddress": optional(addressType),
					"betStartTime":        optional(bigIntType),
					"betEndTime":          optional(bigIntType),
					"resultSetStartTime":  optional(bigIntType),
					"resultSetEndTime":    optional(bigIntType),
					"resultIndex":         optional(graphql.Int),
					"amount":              optional(amountType),
				},
				Resolve: s.resolveSubmitPendingTransaction,
			},
		},
	})
}

// args reads mutation arguments, keeping the first conversion error
type args struct {
	raw map[string]interface{}
	err error
}

func (a *args) str(name string) string {
	v, _ := a.raw[name].(string)
	return v
}

func (a *args) uint64(name string) uint64 {
	v, ok := a.raw[name].(string)
	if !ok || v == "" || a.err != nil {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		a.err = model.NewValidationError(name, "must be an unsigned integer")
	}
	return n
}

func (a *args) small(name string, max int) int {
	v, ok := a.raw[name].(int)
	if !ok || a.err != nil {
		return 0
	}
	if v < 0 || v > max {
		a.err = model.NewValidationError(name, "out of range")
		return 0
	}
	return v
}

func (a *args) strings(name string) []string {
	list, _ := a.raw[name].([]interface{})
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (s *Schema) pendingFailed(op string, err error) error {
	s.logger.Warn("pending mutation rejected", zap.String("op", op), zap.Error(err))
	return err
}

func (s *Schema) resolveAddPendingEvent(p graphql.ResolveParams) (interface{}, error) {
	a := &args{raw: p.Args}
	in := pending.EventInput{
		TxID:               a.str("txid"),
		BlockNum:           a.uint64("blockNum"),
		OwnerAddress:       a.str("ownerAddress"),
		Version:            uint16(a.small("version", 0xffff)),
		Name:               a.str("name"),
		Results:            a.strings("results"),
		CentralizedOracle:  a.str("centralizedOracle"),
		BetStartTime:       a.uint64("betStartTime"),
		BetEndTime:         a.uint64("betEndTime"),
		ResultSetStartTime: a.uint64("resultSetStartTime"),
		ResultSetEndTime:   a.uint64("resultSetEndTime"),
		Language:           a.str("language"),
	}
	if a.err != nil {
		return nil, a.err
	}

	ev, err := s.deps.Pending.AddPendingEvent(p.Context, in)
	if err != nil {
		return nil, s.pendingFailed("addPendingEvent", err)
	}
	return eventToMap(ev), nil
}

func (s *Schema) resolveAddPendingBet(p graphql.ResolveParams) (interface{}, error) {
	a := &args{raw: p.Args}
	in := pending.BetInput{
		TxID:          a.str("txid"),
		BlockNum:      a.uint64("blockNum"),
		EventAddress:  a.str("eventAddress"),
		BetterAddress: a.str("betterAddress"),
		ResultIndex:   uint8(a.small("resultIndex", 0xff)),
		Amount:        a.str("amount"),
		EventRound:    uint8(a.small("eventRound", 0xff)),
	}
	if a.err != nil {
		return nil, a.err
	}

	bet, err := s.deps.Pending.AddPendingBet(p.Context, in)
	if err != nil {
		return nil, s.pendingFailed("addPendingBet", err)
	}
	return pendingRowToMap(bet.TxID, bet.TxStatus, string(bet.TxType), bet.BlockNum, bet.EventAddress), nil
}

func (s *Schema) resolveAddPendingResultSet(p graphql.ResolveParams) (interface{}, error) {
	a := &args{raw: p.Args}
	in := pending.ResultSetInput{
		TxID:                     a.str("txid"),
		BlockNum:                 a.uint64("blockNum"),
		EventAddress:             a.str("eventAddress"),
		CentralizedOracleAddress: a.str("centralizedOracleAddress"),
		ResultIndex:              uint8(a.small("resultIndex", 0xff)),
		Amount:                   a.str("amount"),
		EventRound:               uint8(a.small("eventRound", 0xff)),
	}
	if a.err != nil {
		return nil, a.err
	}

	rs, err := s.deps.Pending.AddPendingResultSet(p.Context, in)
	if err != nil {
		return nil, s.pendingFailed("addPendingResultSet", err)
	}
	return pendingRowToMap(rs.TxID, rs.TxStatus, string(rs.TxType), rs.BlockNum, rs.EventAddress), nil
}

func (s *Schema) resolveAddPendingWithdraw(p graphql.ResolveParams) (interface{}, error) {
	a := &args{raw: p.Args}
	in := pending.WithdrawInput{
		TxID:          a.str("txid"),
		BlockNum:      a.uint64("blockNum"),
		EventAddress:  a.str("eventAddress"),
		WinnerAddress: a.str("winnerAddress"),
		WinningAmount: a.str("winningAmount"),
		EscrowAmount:  a.str("escrowAmount"),
	}
	if a.err != nil {
		return nil, a.err
	}

	w, err := s.deps.Pending.AddPendingWithdraw(p.Context, in)
	if err != nil {
		return nil, s.pendingFailed("addPendingWithdraw", err)
	}
	return pendingRowToMap(w.TxID, w.TxStatus, "", w.BlockNum, w.EventAddress), nil
}

func (s *Schema) resolveSubmitPendingTransaction(p graphql.ResolveParams) (interface{}, error) {
	a := &args{raw: p.Args}
	in := pending.TransactionInput{
		TxID:                a.str("txid"),
		Type:                model.PendingTxType(a.str("type")),
		Version:             uint16(a.small("version", 0xffff)),
		SenderAddress:       a.str("senderAddress"),
		GasLimit:            a.uint64("gasLimit"),
		GasPrice:            a.str("gasPrice"),
		CreatedBlock:        a.uint64("createdBlock"),
		EventAddress:        a.str("eventAddress"),
		Name:                a.str("name"),
		Options:             a.strings("options"),
		ResultSetterAddress: a.str("resultSetterAddress"),
		BetStartTime:        a.uint64("betStartTime"),
		BetEndTime:          a.uint64("betEndTime"),
		ResultSetStartTime:  a.uint64("resultSetStartTime"),
		ResultSetEndTime:    a.uint64("resultSetEndTime"),
		ResultIndex:         uint8(a.small("resultIndex", 0xff)),
		Amount:              a.str("amount"),
	}
	if a.err != nil {
		return nil, a.err
	}

	tx, err := s.deps.Pending.SubmitPendingTransaction(p.Context, in)
	if err != nil {
		return nil, s.pendingFailed("submitPendingTransaction", err)
	}
	return map[string]interface{}{
		"txid":          tx.TxID,
		"type":          string(tx.Type),
		"status":        string(tx.Status),
		"gasLimit":      tx.GasLimit,
		"gasPrice":      tx.GasPrice,
		"senderAddress": tx.SenderAddress,
		"eventAddress":  tx.EventAddress,
	}, nil
}

func pendingRowToMap(txid string, status model.TxStatus, txType string, blockNum uint64, eventAddress string) map[string]interface{} {
	m := map[string]interface{}{
		"txid":         txid,
		"txStatus":     string(status),
		"blockNum":     u64(blockNum),
		"eventAddress": eventAddress,
	}
	if txType != "" {
		m["txType"] = txType
	}
	return m
}
