package domain

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"
)

// Table is a read-only snapshot of the listings.
type Table struct {
	Records  []ListingRecord
	Version  string
	LoadedAt time.Time
	Source   string
}

// NewTable fingerprints the records so caches can key on content.
func NewTable(records []ListingRecord, source string, now time.Time) *Table {
	return &Table{Records: records, Version: Fingerprint(records), LoadedAt: now, Source: source}
}

func Fingerprint(records []ListingRecord) string {
	h := sha1.New()
	var buf [8]byte
	for _, r := range records {
		for _, s := range []string{r.Country, r.PropertyType, r.RoomType, r.HostName, r.Name} {
			h.Write([]byte(s))
			h.Write([]byte{0})
		}
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(r.Price))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(r.Availability365))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
