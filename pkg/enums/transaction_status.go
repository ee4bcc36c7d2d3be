package enums

import "fmt"

// TransactionStatus is the lifecycle state of a gateway payment attempt.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusSuccess    TransactionStatus = "success"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusProcessing,
	TransactionStatusSuccess,
	TransactionStatusFailed,
	TransactionStatusCancelled,
}

// OpenTransactionStatuses are the states a terminal transition may start from.
var OpenTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusProcessing,
}

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TransactionStatus.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusSuccess, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes pending -> processing -> {success, failed, cancelled}.
// pending may jump straight to a terminal state.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case TransactionStatusPending:
		return next == TransactionStatusProcessing || next.IsTerminal()
	case TransactionStatusProcessing:
		return next.IsTerminal()
	default:
		return false
	}
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
