package service

import "time"

// DefaultHeartbeatThreshold is how stale a heartbeat may be before a device
// reporting itself online is treated as offline anyway.
const DefaultHeartbeatThreshold = 120 * time.Second

// EffectiveOnline derives device liveness from the reported online flag and
// the heartbeat timestamp. The flag alone cannot be trusted: a device that
// dropped off the network leaves its last write behind. The threshold
// boundary is exclusive, so a heartbeat exactly threshold old counts as
// offline.
func EffectiveOnline(reported bool, lastSeen, now time.Time, threshold time.Duration) bool {
	if !reported {
		return false
	}
	return now.Sub(lastSeen) < threshold
}
