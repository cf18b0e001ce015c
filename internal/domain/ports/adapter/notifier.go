package adapter

import "context"

// TrialNotifier receives the decision that an account should be told its
// trial is about to end. Delivery (push/email) is outside this service;
// implementations hand the decision to the transport of choice.
type TrialNotifier interface {
	NotifyTrialEnding(ctx context.Context, accountID string, daysRemaining int) error
}
