package mysql

// Unsigned integer correction for binlog-decoded values.
//
// The binlog decoder reads fixed-width integers as signed, so an unsigned
// column whose stored value exceeds the signed positive range comes out
// negative. The stored value is recovered by adding (max unsigned value
// for the width + 1). Each corrected value is returned in the next larger
// signed type, which holds the full unsigned range.
//
// All four functions are total over their input domain, allocation-free
// and safe for concurrent use.

// Maximum values for the unsigned MySQL integer types.
// See https://dev.mysql.com/doc/refman/8.0/en/integer-types.html
const (
	maxUnsignedTinyint   = 255
	maxUnsignedSmallint  = 65535
	maxUnsignedMediumint = 16777215
	maxUnsignedInt       = 4294967295
)

// UnsignedTinyint corrects a signed-decoded TINYINT UNSIGNED value.
func UnsignedTinyint(v int16) int16 {
	if v < 0 {
		return v + maxUnsignedTinyint + 1
	}
	return v
}

// UnsignedSmallint corrects a signed-decoded SMALLINT UNSIGNED value.
func UnsignedSmallint(v int32) int32 {
	if v < 0 {
		return v + maxUnsignedSmallint + 1
	}
	return v
}

// UnsignedMediumint corrects a signed-decoded MEDIUMINT UNSIGNED value.
// MEDIUMINT is 24 bits wide, so the corrected value still fits in int32.
func UnsignedMediumint(v int32) int32 {
	if v < 0 {
		return v + maxUnsignedMediumint + 1
	}
	return v
}

// UnsignedInt corrects a signed-decoded INT UNSIGNED value.
func UnsignedInt(v int64) int64 {
	if v < 0 {
		return v + maxUnsignedInt + 1
	}
	return v
}
