// Temporal helpers: Date, Time, DateTime, and Interval values are stored
// as absolute offsets since a type-specific epoch (spec section 4.1).
package types

import "time"

// epoch is the reference instant for DateTime/Time encodings (Unix
// epoch, UTC).
var epoch = time.Unix(0, 0).UTC()

// EncodeDate returns the number of days since the epoch, fitting
// TypeDate's 4-byte slot.
func EncodeDate(t time.Time) int32 {
	days := int64(t.UTC().Sub(epoch).Hours() / 24)
	return int32(days)
}

func DecodeDate(days int32) time.Time {
	return epoch.Add(time.Duration(days) * 24 * time.Hour)
}

// EncodeTime returns nanoseconds since midnight UTC, fitting TypeTime's
// 8-byte slot.
func EncodeTime(t time.Time) int64 {
	u := t.UTC()
	return int64(u.Hour())*int64(time.Hour) +
		int64(u.Minute())*int64(time.Minute) +
		int64(u.Second())*int64(time.Second) +
		int64(u.Nanosecond())
}

// EncodeDateTime returns nanoseconds since the Unix epoch, fitting
// TypeDateTime's 8-byte slot.
func EncodeDateTime(t time.Time) int64 {
	return t.UTC().Sub(epoch).Nanoseconds()
}

func DecodeDateTime(ns int64) time.Time {
	return epoch.Add(time.Duration(ns))
}

// EncodeInterval returns a duration's nanosecond count, fitting
// TypeInterval's 8-byte slot.
func EncodeInterval(d time.Duration) int64 {
	return int64(d)
}

func DecodeInterval(ns int64) time.Duration {
	return time.Duration(ns)
}
