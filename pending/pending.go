// Package pending records speculative rows for transactions this node has
// broadcast but the chain has not confirmed yet. The sync loop later promotes
// or compensates them.
package pending

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/0xmhha/predict-indexer/internal/constants"
	"github.com/0xmhha/predict-indexer/internal/model"
	"github.com/0xmhha/predict-indexer/storage"
)

// ErrAlreadyExists is returned when a row with the same txid is stored
var ErrAlreadyExists = errors.New("already exists")

// maxResults leaves one slot of the widest results array for the invalid result
const maxResults = 10

// Store is the storage surface for speculative rows
type Store interface {
	InsertEvent(ctx context.Context, ev *model.Event) error
	GetEventByAddress(ctx context.Context, address string) (*model.Event, error)
	InsertBet(ctx context.Context, bet *model.Bet) error
	FindBets(ctx context.Context, filter storage.BetFilter) ([]*model.Bet, error)
	InsertResultSet(ctx context.Context, rs *model.ResultSet) error
	InsertWithdraw(ctx context.Context, w *model.Withdraw) error
	InsertPendingTransaction(ctx context.Context, tx *model.PendingTransaction) error
}

// Service validates and stores speculative rows
type Service struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a pending row service
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, now: time.Now, logger: logger}
}

// EventInput describes an event whose creation was just broadcast
type EventInput struct {
	TxID               string
	BlockNum           uint64
	OwnerAddress       string
	Version            uint16
	Name               string
	Results            []string
	CentralizedOracle  string
	BetStartTime       uint64
	BetEndTime         uint64
	ResultSetStartTime uint64
	ResultSetEndTime   uint64
	Language           string
}

// AddPendingEvent stores a CREATED event under the creation txid
func (s *Service) AddPendingEvent(ctx context.Context, in EventInput) (*model.Event, error) {
	txid, err := normalizeTxID(in.TxID)
	if err != nil {
		return nil, err
	}
	owner, err := requireAddress("ownerAddress", in.OwnerAddress)
	if err != nil {
		return nil, err
	}
	oracle, err := requireAddress("centralizedOracle", in.CentralizedOracle)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, model.NewValidationError("name", "cannot be empty")
	}
	if len(in.Results) == 0 || len(in.Results) > maxResults {
		return nil, model.NewValidationError("results", fmt.Sprintf("must have 1 to %d entries", maxResults))
	}
	for _, r := range in.Results {
		if strings.TrimSpace(r) == "" {
			return nil, model.NewValidationError("results", "entries cannot be empty")
		}
	}
	switch {
	case in.BetStartTime >= in.BetEndTime:
		return nil, model.NewValidationError("betEndTime", "must be after betStartTime")
	case in.ResultSetStartTime < in.BetEndTime:
		return nil, model.NewValidationError("resultSetStartTime", "cannot be before betEndTime")
	case in.ResultSetStartTime >= in.ResultSetEndTime:
		return nil, model.NewValidationError("resultSetEndTime", "must be after resultSetStartTime")
	}

	language := in.Language
	if language == "" {
		language = model.DefaultLanguage
	}

	ev := &model.Event{
		TxID:               txid,
		TxStatus:           model.TxStatusPending,
		BlockNum:           in.BlockNum,
		OwnerAddress:       owner,
		Version:            in.Version,
		Name:               in.Name,
		Results:            in.Results,
		NumOfResults:       uint8(len(in.Results)),
		CentralizedOracle:  oracle,
		BetStartTime:       in.BetStartTime,
		BetEndTime:         in.BetEndTime,
		ResultSetStartTime: in.ResultSetStartTime,
		ResultSetEndTime:   in.ResultSetEndTime,
		CurrentResultIndex: model.InvalidResultIndex,
		Status:             model.StatusCreated,
		Language:           language,
	}
	if err := s.store.InsertEvent(ctx, ev); err != nil {
		return nil, insertErr("event", txid, err)
	}

	s.logger.Debug("pending event added", zap.String("txid", txid))
	return ev, nil
}

// BetInput describes a bet or vote that was just broadcast
type BetInput struct {
	TxID          string
	BlockNum      uint64
	EventAddress  string
	BetterAddress string
	ResultIndex   uint8
	Amount        string
	EventRound    uint8
}

// AddPendingBet stores a speculative bet, or vote when the round is past 0
func (s *Service) AddPendingBet(ctx context.Context, in BetInput) (*model.Bet, error) {
	txid, err := normalizeTxID(in.TxID)
	if err != nil {
		return nil, err
	}
	eventAddr, err := requireAddress("eventAddress", in.EventAddress)
	if err != nil {
		return nil, err
	}
	better, err := requireAddress("betterAddress", in.BetterAddress)
	if err != nil {
		return nil, err
	}
	amount, err := requireAmount("amount", in.Amount)
	if err != nil {
		return nil, err
	}

	bet := &model.Bet{
		TxID:          txid,
		TxStatus:      model.TxStatusPending,
		TxType:        model.ClassifyRound(in.EventRound),
		BlockNum:      in.BlockNum,
		EventAddress:  eventAddr,
		BetterAddress: better,
		ResultIndex:   in.ResultIndex,
		Amount:        amount,
		EventRound:    in.EventRound,
	}
	if err := s.store.InsertBet(ctx, bet); err != nil {
		return nil, insertErr("bet", txid, err)
	}

	s.logger.Debug("pending bet added", zap.String("txid", txid), zap.String("type", string(bet.TxType)))
	return bet, nil
}

// ResultSetInput describes a result set that was just broadcast
type ResultSetInput struct {
	TxID                     string
	BlockNum                 uint64
	EventAddress             string
	CentralizedOracleAddress string
	ResultIndex              uint8
	Amount                   string
	EventRound               uint8
}

// AddPendingResultSet stores a speculative result set
func (s *Service) AddPendingResultSet(ctx context.Context, in ResultSetInput) (*model.ResultSet, error) {
	txid, err := normalizeTxID(in.TxID)
	if err != nil {
		return nil, err
	}
	eventAddr, err := requireAddress("eventAddress", in.EventAddress)
	if err != nil {
		return nil, err
	}
	amount, err := requireAmount("amount", in.Amount)
	if err != nil {
		return nil, err
	}

	var oracle string
	if in.EventRound == 0 {
		if oracle, err = requireAddress("centralizedOracleAddress", in.CentralizedOracleAddress); err != nil {
			return nil, err
		}
	}

	rs := &model.ResultSet{
		TxID:                     txid,
		TxStatus:                 model.TxStatusPending,
		TxType:                   model.ClassifyRound(in.EventRound),
		BlockNum:                 in.BlockNum,
		EventAddress:             eventAddr,
		CentralizedOracleAddress: oracle,
		ResultIndex:              in.ResultIndex,
		Amount:                   amount,
		EventRound:               in.EventRound,
	}
	if err := s.store.InsertResultSet(ctx, rs); err != nil {
		return nil, insertErr("result set", txid, err)
	}

	s.logger.Debug("pending result set added", zap.String("txid", txid))
	return rs, nil
}

// WithdrawInput describes a withdrawal that was just broadcast
type WithdrawInput struct {
	TxID          string
	BlockNum      uint64
	EventAddress  string
	WinnerAddress string
	WinningAmount string
	EscrowAmount  string
}

// AddPendingWithdraw stores a speculative withdrawal
func (s *Service) AddPendingWithdraw(ctx context.Context, in WithdrawInput) (*model.Withdraw, error) {
	txid, err := normalizeTxID(in.TxID)
	if err != nil {
		return nil, err
	}
	eventAddr, err := requireAddress("eventAddress", in.EventAddress)
	if err != nil {
		return nil, err
	}
	winner, err := requireAddress("winnerAddress", in.WinnerAddress)
	if err != nil {
		return nil, err
	}
	winning, err := optionalAmount("winningAmount", in.WinningAmount)
	if err != nil {
		return nil, err
	}
	escrow, err := optionalAmount("escrowAmount", in.EscrowAmount)
	if err != nil {
		return nil, err
	}

	w := &model.Withdraw{
		TxID:                 txid,
		TxStatus:             model.TxStatusPending,
		BlockNum:             in.BlockNum,
		EventAddress:         eventAddr,
		WinnerAddress:        winner,
		WinningAmount:        winning,
		EscrowWithdrawAmount: escrow,
	}
	if err := s.store.InsertWithdraw(ctx, w); err != nil {
		return nil, insertErr("withdraw", txid, err)
	}

	s.logger.Debug("pending withdraw added", zap.String("txid", txid))
	return w, nil
}

// TransactionInput describes a transaction this node broadcast
type TransactionInput struct {
	TxID          string
	Type          model.PendingTxType
	Version       uint16
	SenderAddress string

	// GasLimit of 0 selects the default for Type
	GasLimit     uint64
	GasPrice     string
	CreatedBlock uint64

	EventAddress        string
	Name                string
	Options             []string
	ResultSetterAddress string
	BetStartTime        uint64
	BetEndTime          uint64
	ResultSetStartTime  uint64
	ResultSetEndTime    uint64
	ResultIndex         uint8
	Amount              string
}

// SubmitPendingTransaction records a broadcast transaction for the reconciler
func (s *Service) SubmitPendingTransaction(ctx context.Context, in TransactionInput) (*model.PendingTransaction, error) {
	txid, err := normalizeTxID(in.TxID)
	if err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, model.NewValidationError("type", fmt.Sprintf("unknown transaction type %q", in.Type))
	}
	sender, err := requireAddress("senderAddress", in.SenderAddress)
	if err != nil {
		return nil, err
	}
	amount, err := optionalAmount("amount", in.Amount)
	if err != nil {
		return nil, err
	}
	eventAddr := model.NormalizeAddress(in.EventAddress)
	if in.EventAddress != "" && eventAddr == "" {
		return nil, model.NewValidationError("eventAddress", "invalid address")
	}
	setter := model.NormalizeAddress(in.ResultSetterAddress)
	if in.ResultSetterAddress != "" && setter == "" {
		return nil, model.NewValidationError("resultSetterAddress", "invalid address")
	}

	gasLimit := in.GasLimit
	if gasLimit == 0 {
		if gasLimit, err = s.DefaultGasLimit(ctx, in.Type, eventAddr, in.ResultIndex, amount); err != nil {
			return nil, err
		}
	}

	tx := &model.PendingTransaction{
		TxID:                txid,
		Type:                in.Type,
		Status:              model.TxStatusPending,
		Version:             in.Version,
		GasLimit:            fmt.Sprintf("%d", gasLimit),
		GasPrice:            in.GasPrice,
		CreatedBlock:        in.CreatedBlock,
		CreatedTime:         s.now().Unix(),
		SenderAddress:       sender,
		EventAddress:        eventAddr,
		Name:                in.Name,
		Options:             in.Options,
		ResultSetterAddress: setter,
		BetStartTime:        in.BetStartTime,
		BetEndTime:          in.BetEndTime,
		ResultSetStartTime:  in.ResultSetStartTime,
		ResultSetEndTime:    in.ResultSetEndTime,
		ResultIndex:         in.ResultIndex,
		Amount:              amount,
	}
	if err := s.store.InsertPendingTransaction(ctx, tx); err != nil {
		return nil, insertErr("transaction", txid, err)
	}

	s.logger.Debug("pending transaction submitted",
		zap.String("txid", txid),
		zap.String("type", string(tx.Type)),
		zap.String("gas_limit", tx.GasLimit))
	return tx, nil
}

// DefaultGasLimit returns the gas limit a transaction of type t is sent with
func (s *Service) DefaultGasLimit(ctx context.Context, t model.PendingTxType, eventAddress string, resultIndex uint8, amount string) (uint64, error) {
	switch t {
	case model.PendingCreateEvent:
		return constants.CreateEventGasLimit, nil
	case model.PendingVote:
		return s.VotingGasLimit(ctx, eventAddress, resultIndex, amount)
	}
	return constants.DefaultGasLimit, nil
}

func insertErr(kind, txid string, err error) error {
	if errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("%s %s: %w", kind, txid, ErrAlreadyExists)
	}
	return fmt.Errorf("failed to insert pending %s %s: %w", kind, txid, err)
}

func normalizeTxID(txid string) (string, error) {
	b, err := hexutil.Decode(txid)
	if err != nil || len(b) != 32 {
		return "", model.NewValidationError("txid", "must be a 32 byte hex hash")
	}
	return strings.ToLower(txid), nil
}

func requireAddress(field, addr string) (string, error) {
	normalized := model.NormalizeAddress(addr)
	if normalized == "" {
		return "", model.NewValidationError(field, "invalid address")
	}
	return normalized, nil
}

func requireAmount(field, amount string) (string, error) {
	d, err := model.ParseAmount(amount)
	if err != nil || amount == "" {
		return "", model.NewValidationError(field, "must be a decimal amount")
	}
	if !d.IsPositive() {
		return "", model.NewValidationError(field, "must be positive")
	}
	return d.String(), nil
}

func optionalAmount(field, amount string) (string, error) {
	if amount == "" {
		return "", nil
	}
	d, err := model.ParseAmount(amount)
	if err != nil {
		return "", model.NewValidationError(field, "must be a decimal amount")
	}
	if d.IsNegative() {
		return "", model.NewValidationError(field, "cannot be negative")
	}
	return d.String(), nil
}
