package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Key prefixes, one per collection
const (
	prefixData              = "/data/"
	prefixIndex             = "/index/"
	prefixEntities          = "/data/entities/"
	prefixBets              = "/data/bets/"
	prefixResultSets        = "/data/resultsets/"
	prefixWithdraws         = "/data/withdraws/"
	prefixBlocks            = "/data/blocks/"
	prefixReceipts          = "/data/receipts/"
	prefixEventLeaderboard  = "/data/lb/event/"
	prefixGlobalLeaderboard = "/data/lb/global/"
	prefixLeaderboardCredit = "/data/lb/credit/"
	prefixPendingTxs        = "/data/pending/"
	prefixEntityAddr        = "/index/entity/addr/"
)

// EntityKey returns the key of an event row
// Format: /data/entities/{txid}
func EntityKey(txid string) []byte {
	return []byte(prefixEntities + txid)
}

// EntityAddressIndexKey maps an event contract address to its txid
// Format: /index/entity/addr/{address}
func EntityAddressIndexKey(address string) []byte {
	return []byte(prefixEntityAddr + address)
}

// BetKey returns the key of a bet row
// Format: /data/bets/{txid}
func BetKey(txid string) []byte {
	return []byte(prefixBets + txid)
}

// ResultSetKey returns the key of a result set row
// Format: /data/resultsets/{txid}
func ResultSetKey(txid string) []byte {
	return []byte(prefixResultSets + txid)
}

// WithdrawKey returns the key of a withdraw row
// Format: /data/withdraws/{txid}
func WithdrawKey(txid string) []byte {
	return []byte(prefixWithdraws + txid)
}

// BlockKey returns the checkpoint key. The number is zero padded so that
// iteration order is block order.
// Format: /data/blocks/{%020d}
func BlockKey(blockNum uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixBlocks, blockNum))
}

// ParseBlockKey extracts the block number from a checkpoint key
func ParseBlockKey(key []byte) (uint64, error) {
	keyStr := string(key)
	if !strings.HasPrefix(keyStr, prefixBlocks) {
		return 0, fmt.Errorf("%w: not a block key", ErrInvalidKey)
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(keyStr, prefixBlocks), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return n, nil
}

// ReceiptKey returns the key of a transaction receipt
// Format: /data/receipts/{txid}
func ReceiptKey(txid string) []byte {
	return []byte(prefixReceipts + txid)
}

// EventLeaderboardKey returns the key of a per-event leaderboard row
// Format: /data/lb/event/{eventAddress}/{userAddress}
func EventLeaderboardKey(eventAddress, userAddress string) []byte {
	return []byte(prefixEventLeaderboard + eventAddress + "/" + userAddress)
}

// EventLeaderboardPrefix returns the prefix of all rows of one event
func EventLeaderboardPrefix(eventAddress string) []byte {
	return []byte(prefixEventLeaderboard + eventAddress + "/")
}

// LeaderboardCreditKey marks a transaction whose stake was added to a
// per-event row
// Format: /data/lb/credit/{txid}
func LeaderboardCreditKey(txid string) []byte {
	return []byte(prefixLeaderboardCredit + txid)
}

// GlobalLeaderboardKey returns the key of a global leaderboard row
// Format: /data/lb/global/{userAddress}
func GlobalLeaderboardKey(userAddress string) []byte {
	return []byte(prefixGlobalLeaderboard + userAddress)
}

// PendingTxKey returns the key of a pending transaction
// Format: /data/pending/{txid}
func PendingTxKey(txid string) []byte {
	return []byte(prefixPendingTxs + txid)
}

// prefixUpperBound returns the exclusive upper bound for a prefix scan
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix), len(prefix)+1)
	copy(upper, prefix)
	return append(upper, 0xff)
}
