// Package hash derives the stable 32-bit identifiers used as primary keys
// for pictures and tags. The mapping must never change: identifiers are
// persisted and re-derived on every crawl.
package hash

import (
	"strconv"

	"github.com/OneOfOne/xxhash"
)

// ID maps a natural key to its identifier. Pure function of the input:
// xxh32 with seed 0, so values match across restarts and platforms.
func ID(key string) uint32 {
	return xxhash.ChecksumString32(key)
}

// PictureKey builds the natural key for one page of one illustration.
func PictureKey(illustID int64, pageNo int) string {
	return strconv.FormatInt(illustID, 10) + "_" + strconv.Itoa(pageNo)
}
