package types

import (
	"fmt"
	"math/big"
	"time"
)

// BundleStatus tracks a bundle through its lifecycle
type BundleStatus string

const (
	BundleCreated   BundleStatus = "created"
	BundleSubmitted BundleStatus = "submitted"
	BundleSimulated BundleStatus = "simulated"
	BundleIncluded  BundleStatus = "included"
	BundleFailed    BundleStatus = "failed"
	BundleExpired   BundleStatus = "expired"
)

// Terminal reports whether the status is an end state
func (s BundleStatus) Terminal() bool {
	switch s {
	case BundleIncluded, BundleFailed, BundleExpired:
		return true
	}
	return false
}

// BundleTransaction is one signed, broadcast-ready transaction inside a bundle
type BundleTransaction struct {
	Hash   string `json:"hash"`
	Raw    []byte `json:"raw"`
	Victim bool   `json:"victim"`
}

// Bundle is an atomic, ordered transaction set (front-run, victim, back-run)
// submitted to a relay. It is owned by the lifecycle manager until it reaches
// a terminal status, then reported and discarded.
type Bundle struct {
	ID           string              `json:"id"`
	Chain        Chain               `json:"chain"`
	Transactions []BundleTransaction `json:"transactions"`
	TargetBlock  uint64              `json:"targetBlock"`
	Tip          *big.Int            `json:"tip"`
	Status       BundleStatus        `json:"status"`
	EstProfitUSD float64             `json:"estimatedProfitUsd"`
	RealProfit   *big.Int            `json:"realizedProfit,omitempty"`
	Transitions  []BundleTransition  `json:"transitions"`
}

// BundleTransition records one status change with its wall-clock time
type BundleTransition struct {
	Status    BundleStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
}

// SetStatus advances the bundle to the given status, enforcing that terminal
// states are never left. Returns an error on an illegal transition.
func (b *Bundle) SetStatus(status BundleStatus) error {
	if b.Status.Terminal() {
		return fmt.Errorf("bundle %s: illegal transition %s -> %s", b.ID, b.Status, status)
	}
	b.Status = status
	b.Transitions = append(b.Transitions, BundleTransition{Status: status, Timestamp: time.Now()})
	return nil
}

// StatusAt returns the timestamp the bundle entered the given status, if ever
func (b *Bundle) StatusAt(status BundleStatus) (time.Time, bool) {
	for _, tr := range b.Transitions {
		if tr.Status == status {
			return tr.Timestamp, true
		}
	}
	return time.Time{}, false
}
