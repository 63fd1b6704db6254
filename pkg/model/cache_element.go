// Package model defines the on-disk row shape shared by the storage driver,
// the blob-cache engine, and the object layer.
package model

import (
	"math"
	"time"
)

// epoch is the fixed reference instant ticks are counted from. It has no
// significance beyond being stable for the life of a database file.
var epoch = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

// NeverExpires is the +infinity sentinel: an entry whose Expiration is
// NeverExpires is live forever.
var NeverExpires = time.Unix(1<<62, 0).UTC()

// neverTicks is the on-disk encoding of NeverExpires: the largest tick
// value, so it always sorts last in the expiration index.
const neverTicks = math.MaxInt64

// CacheElement is the only persisted row.
type CacheElement struct {
	Key        string
	TypeName   string // empty means "raw bytes entry", no type tag
	Value      []byte
	Expiration time.Time
	CreatedAt  time.Time
}

// IsLive reports whether e has not expired as of now.
func (e *CacheElement) IsLive(now time.Time) bool {
	return !now.After(e.Expiration)
}

// Ticks converts an instant to the stable on-disk tick encoding (ticks
// since epoch, UTC). NeverExpires always encodes to neverTicks regardless
// of floating point/monotonic noise.
func Ticks(t time.Time) int64 {
	if t.Equal(NeverExpires) || t.After(NeverExpires) {
		return neverTicks
	}
	d := t.UTC().Sub(epoch)
	return int64(d)
}

// FromTicks is the inverse of Ticks.
func FromTicks(ticks int64) time.Time {
	if ticks >= neverTicks {
		return NeverExpires
	}
	return epoch.Add(time.Duration(ticks))
}
