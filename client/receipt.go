package client

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/0xmhha/predict-indexer/internal/model"
)

// ReceiptModel converts a ledger receipt into its stored form. Receipts do
// not carry the sender, so From is left for callers that know it.
func ReceiptModel(r *types.Receipt) *model.TransactionReceipt {
	out := &model.TransactionReceipt{
		TxID:              r.TxHash.Hex(),
		Status:            r.Status == types.ReceiptStatusSuccessful,
		BlockHash:         r.BlockHash.Hex(),
		CumulativeGasUsed: r.CumulativeGasUsed,
		GasUsed:           r.GasUsed,
	}
	if r.BlockNumber != nil {
		out.BlockNum = r.BlockNumber.Uint64()
	}
	if r.ContractAddress != (common.Address{}) {
		out.ContractAddress = model.CanonicalAddress(r.ContractAddress)
	}
	if len(r.Logs) > 0 {
		out.To = model.CanonicalAddress(r.Logs[0].Address)
	}
	return out
}
