package channel

import "fmt"

// ValidationError reports a malformed or out-of-range argument supplied to
// a controller operation (e.g. a negative quantity, a hash of the wrong
// length).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("channel: invalid %s: %s", e.Field, e.Reason)
}

// InvalidQuantityError reports a requested commit quantity that is out of
// range: either above the deposit's total, or not strictly above the
// quantity already transferred. Both cases use this one type. This replaces
// the original implementation's `msg.fromat` typo'd error path with a typed
// error.
type InvalidQuantityError struct {
	Quantity int64
	Total    int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("channel: quantity %d out of range: must exceed the transferred amount and not exceed total %d", e.Quantity, e.Total)
}

// InsufficientFundsError reports that an operation needs more than is
// available: the payer's asset or bare-BTC balance for a deposit, or the
// value left to cover the fee plus dust on a commit or recovery spend.
type InsufficientFundsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("channel: insufficient funds: required %d, available %d", e.Required, e.Available)
}

// ChannelAlreadyUsedError reports that a deposit address already has
// on-chain transaction history (confirmed or not), meaning the address must
// not be reused for a new channel.
type ChannelAlreadyUsedError struct {
	Address string
	TxIDs   []string
}

func (e *ChannelAlreadyUsedError) Error() string {
	return fmt.Sprintf("channel: address %s already used by %d other transaction(s)", e.Address, len(e.TxIDs))
}

// MismatchError reports counterparty misbehavior: a supplied transaction
// or script doesn't match what this controller expects (wrong script
// embedded, wrong amount, wrong destination, a signature that doesn't
// verify).
type MismatchError struct {
	What     string
	Expected string
	Got      string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("channel: %s mismatch: expected %s, got %s", e.What, e.Expected, e.Got)
}

// ProtocolError reports an operation requested out of the order the
// channel's state machine allows (e.g. closing a channel that has no
// active commit).
type ProtocolError struct {
	Op     string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("channel: %s not allowed: %s", e.Op, e.Reason)
}

// TransportError wraps a failure from an external collaborator (asset
// node, chain client) so callers can distinguish "our request was invalid"
// from "the network/backend failed".
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("channel: %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AssertionError reports a failed internal invariant: the asset node
// reported a different quantity than the controller itself asked it to
// move, or an equivalent round-trip mismatch in code this controller does
// not consider adversarial input. Per spec.md §7 this indicates a bug in
// the controller or its collaborator, not a validation failure the caller
// can recover from by retrying with different arguments.
type AssertionError struct {
	What     string
	Expected int64
	Got      int64
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("channel: assertion failed: %s: expected %d, got %d", e.What, e.Expected, e.Got)
}
