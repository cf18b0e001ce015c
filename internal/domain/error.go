package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrConfiguration       = errors.New("payment provider not configured")
	ErrOperationFailed     = errors.New("operation failed")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrInvalidExecContext  = errors.New("invalid transaction context")
	ErrLockNotAcquired     = errors.New("job lock not acquired")
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// Entitlement errors
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrTrialExpired         = errors.New("trial has expired")
	ErrSubscriptionExpired  = errors.New("subscription has expired")

	// Receipt errors
	ErrReceiptInvalid = errors.New("receipt rejected by provider")
	ErrUnknownProduct = errors.New("product id is not mapped to a plan")
)
