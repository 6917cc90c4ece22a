package record

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// Fingerprint summarizes a multiset of records independently of their order.
// Two files holding the same records in any order have equal fingerprints.
type Fingerprint struct {
	Count uint64
	Sum   uint64 // wrapping sum of xxh3 hashes
	Xor   uint64 // xor of xxh3 hashes
}

// Add folds one record into the fingerprint.
func (f *Fingerprint) Add(rec []byte) {
	h := xxh3.Hash(rec)
	f.Count++
	f.Sum += h
	f.Xor ^= h
}

// AddAll folds every record of buf, which must be a whole number of records.
func (f *Fingerprint) AddAll(buf []byte, size int) {
	for off := 0; off+size <= len(buf); off += size {
		f.Add(buf[off : off+size])
	}
}

// Merge folds another fingerprint into f.
func (f *Fingerprint) Merge(o Fingerprint) {
	f.Count += o.Count
	f.Sum += o.Sum
	f.Xor ^= o.Xor
}

// Equal reports whether both fingerprints describe the same multiset.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f == o
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%d:%016x:%016x", f.Count, f.Sum, f.Xor)
}
