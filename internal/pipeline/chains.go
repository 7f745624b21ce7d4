package pipeline

import (
	"github.com/runger/bikeshare/internal/domain"
)

// CheckoutValidators returns the checkout validation chain in its fixed order.
func CheckoutValidators() Chain {
	return Chain{
		CheckDuplicate,
		ValidateEmailDomain,
		CheckSystemActive,
		FindBike,
		CheckBikeAvailable,
		CheckUserEligible,
	}
}

// ReturnValidators returns the return validation chain in its fixed order.
func ReturnValidators() Chain {
	return Chain{
		CheckDuplicate,
		ValidateEmailDomain,
		CheckSystemActive,
		FindBike,
		CheckBikeCheckedOut,
		CheckReturnEligible,
	}
}

// CheckoutTransaction returns the checkout business-logic chain.
func CheckoutTransaction() Chain {
	return Chain{
		ProcessCheckoutTransaction,
		UpdateBikeStatus,
		UpdateUserStatus,
		AppendLogEntry,
		QueueConfirmation,
	}
}

// ReturnTransaction returns the return business-logic chain.
func ReturnTransaction() Chain {
	return Chain{
		ProcessReturnTransaction,
		CalculateUsageHours,
		UpdateBikeStatus,
		UpdateUserStatus,
		AppendLogEntry,
		QueueConfirmation,
	}
}

// Chains returns the validation and business-logic chains for op.
func Chains(op domain.Operation) (validators, transaction Chain) {
	if op == domain.OpReturn {
		return ReturnValidators(), ReturnTransaction()
	}
	return CheckoutValidators(), CheckoutTransaction()
}
