package repository

import (
	"context"
)

// NotificationLogRepository records trial-expiry notification decisions so
// a scan that runs more than once per day never notifies twice. The day
// bucket is the calendar date (UTC) the decision was made on.
type NotificationLogRepository interface {
	// Save records a sent notification; returns domain.ErrAlreadyExists if
	// the same (account, kind, day) was already recorded. thresholdDays is
	// data, not part of the dedup key: a countdown crossing from 2 days to
	// 1 day between passes must not notify twice on the same day.
	Save(ctx context.Context, tx Tx, accountID, kind string, thresholdDays int, day string) error
	// Exists checks whether the notification was already recorded for day.
	Exists(ctx context.Context, tx Tx, accountID, kind, day string) (bool, error)
}
