package storage

import "time"

// Storage area reported on change notifications.
const AreaLocal = "local"

// Persisted keys. These are the names reported in Change.Keys.
const (
	KeySiteTimes          = "siteTimes"
	KeyTrackedSites       = "trackedSites"
	KeyTrackedTotal       = "trackedTotal"
	KeyOtherTotal         = "otherTotal"
	KeyUntrackedSitesTime = "untrackedSitesTime"
)

// TotalKeys lists the three cached aggregate keys.
var TotalKeys = []string{KeyTrackedTotal, KeyOtherTotal, KeyUntrackedSitesTime}

// Totals is the cached tracked/untracked split of all recorded seconds.
// Other and Untracked are maintained identically.
type Totals struct {
	Tracked   int64 `json:"trackedTotal"`
	Other     int64 `json:"otherTotal"`
	Untracked int64 `json:"untrackedSitesTime"`
}

// Change is one entry of the storage change log.
type Change struct {
	ID        int64
	ChangeID  string
	Area      string
	Keys      []string
	Origin    string
	Timestamp time.Time
}

// Has reports whether the change touched key.
func (c Change) Has(key string) bool {
	for _, k := range c.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// Stats holds aggregate statistics about recorded time.
type Stats struct {
	Domains      int64
	TotalSeconds int64
	Changes      int64
	TopDomains   []DomainTime
}

// DomainTime pairs a domain with its accumulated seconds.
type DomainTime struct {
	Domain  string `json:"domain"`
	Seconds int64  `json:"seconds"`
}
