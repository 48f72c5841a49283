package common

//go:generate go tool enumer -json -sql -type OrderState -trimprefix OrderState -transform lower

// OrderState is the lifecycle state of a provider order
type OrderState int

const (
	OrderStateSubmitted OrderState = iota
	OrderStateQueued
	OrderStateRunning
	OrderStateSuccess
	OrderStatePartial
	OrderStateFailed
	OrderStateCancelled
)

// ParseOrderState returns the state reported by the provider.
// Unknown states (e.g. "finishing") are considered as running.
func ParseOrderState(s string) OrderState {
	state, err := OrderStateString(s)
	if err != nil {
		return OrderStateRunning
	}
	return state
}

// IsTerminal returns true if the order will not change anymore
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateSuccess, OrderStatePartial, OrderStateFailed, OrderStateCancelled:
		return true
	}
	return false
}
