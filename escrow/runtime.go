package escrow

import "math/big"

// The escrow engine never talks to the outside world directly; it consumes
// the narrow capabilities below. Each capability call is atomic-or-failed:
// either the downstream effect happened completely or the call returned an
// error and nothing happened. The engine persists its own state only after
// every capability call in the operation succeeded, which is what makes
// each operation all-or-nothing.

// StateStore is the provided key-value store. Get returns (nil, nil) for a
// missing key. Implementations must serialize Get/Put per call.
type StateStore interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

// AssetLedger moves the stable coin between accounts.
type AssetLedger interface {
	Transfer(from, to string, amount *big.Int) error
}

// TokenLedger mints project token units. Amounts are fixed-point at the
// stable coin scale; a non-fungible backend may floor to whole token IDs.
type TokenLedger interface {
	Mint(recipient string, amount *big.Int) error
}

// Clock reports the current time in nanoseconds. It is read once at the
// start of each call; deadlines are evaluated lazily against that reading,
// never by background timers.
type Clock interface {
	Now() uint64
}

// EventSink receives the JSON-encoded observability events. Sink failures
// are logged and swallowed; correctness never depends on them.
type EventSink interface {
	Emit(event string, payload []byte) error
}
