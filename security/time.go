package security

import "time"

// DefaultClockSkewGracePeriod is the grace applied to expiry checks so
// tokens issued by one process are not rejected by another whose clock
// runs a few seconds behind. The trade-off is that material stays usable
// for up to this long past its true expiry.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsExpired checks whether the given expiry has passed, applying the
// default clock skew grace period. A zero expiry means non-expiring.
func IsExpired(expiresAt time.Time) bool {
	return IsExpiredWithGracePeriod(expiresAt, DefaultClockSkewGracePeriod)
}

// IsExpiredWithGracePeriod checks whether the given expiry has passed with
// a custom grace period. A zero expiry means non-expiring.
func IsExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}
