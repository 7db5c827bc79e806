package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// ComputeTradeID computes a deterministic trade_id.
// Formula: base58(SHA256(symbol|definition|start_ms|end_ms|open))
// A trade that is still open gets a new id once later data closes it.
func ComputeTradeID(
	symbol string,
	definition string,
	startMs int64,
	endMs int64,
	open bool,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d|%t",
		symbol,
		definition,
		startMs,
		endMs,
		open,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}
