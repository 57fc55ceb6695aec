package types

import (
	"math/big"
	"time"
)

// PendingTransaction represents a not-yet-confirmed transaction observed on
// one of the supported chains. Raw fields are kept as received so the bundle
// can replay the victim transaction unchanged.
type PendingTransaction struct {
	Hash      string    `json:"hash"`
	Chain     Chain     `json:"chain"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Value     *big.Int  `json:"value"`
	GasPrice  *big.Int  `json:"gasPrice"`
	GasLimit  uint64    `json:"gasLimit"`
	Nonce     uint64    `json:"nonce"`
	Data      []byte    `json:"data"`
	Raw       []byte    `json:"raw"`
	Timestamp time.Time `json:"timestamp"`
}
