package domain

import (
	"time"

	kerneldomain "github.com/shamell/shamell/internal/domain"
)

// RefundPercent returns the refund tier percentage for a cancellation at now
// given a trip's departAt: >=30d pays 100%, >=7d pays 70%, >=48h pays 40%,
// else→20%; past departure→0%.
func RefundPercent(now, departAt time.Time) int {
	delta := departAt.Sub(now)
	if delta < 0 {
		return kerneldomain.RefundPercentNone
	}
	days := delta.Hours() / 24
	hours := delta.Hours()
	switch {
	case days >= kerneldomain.RefundTierFullDays:
		return kerneldomain.RefundPercentFull
	case days >= kerneldomain.RefundTierHighDays:
		return kerneldomain.RefundPercentHigh
	case hours >= kerneldomain.RefundTierMediumHours:
		return kerneldomain.RefundPercentMedium
	default:
		return kerneldomain.RefundPercentLow
	}
}
