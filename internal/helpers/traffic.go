package helpers

import (
	"time"

	"xui-sync/internal/constants"
)

// UsageBytes sums the up and down counters of a client snapshot
func UsageBytes(up, down int64) int64 {
	return up + down
}

// BytesToGB converts a byte counter to gigabytes
func BytesToGB(bytes int64) float64 {
	return float64(bytes) / float64(constants.BytesInGB)
}

// GBToBytes converts a gigabyte limit to bytes
func GBToBytes(gb float64) int64 {
	return int64(gb * float64(constants.BytesInGB))
}

// UsagePercent computes usage as a percentage of the limit.
// A zero limit means unlimited and always reports 0.
func UsagePercent(usedBytes, limitBytes int64) float64 {
	if limitBytes <= 0 {
		return 0
	}
	return float64(usedBytes) / float64(limitBytes) * 100
}

// IsExpired reports whether an epoch-millisecond expiry has passed.
// Zero means never-expiring.
func IsExpired(expiryMillis int64, now time.Time) bool {
	if expiryMillis == 0 {
		return false
	}
	return expiryMillis < now.UnixMilli()
}

// ToEpochMillis converts an optional deadline to the panel's
// epoch-millisecond representation, with nil meaning never
func ToEpochMillis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

// FromEpochMillis converts a panel expiry to a time pointer, nil for never
func FromEpochMillis(millis int64) *time.Time {
	if millis == 0 {
		return nil
	}
	t := time.UnixMilli(millis)
	return &t
}
