package util

import (
	"encoding/hex"
	"hash"
	"io"
)

// An HashWriter wraps an io.Writer and also calculates a set of named hashes
// of the bytes written. Every write is passed to each hash, so any number of
// digests can be computed in a single pass over the data.
type HashWriter struct {
	io.Writer // our io.MultiWriter
	hashes    map[string]hash.Hash
}

// NewHashWriter returns a HashWriter wrapping w and computing each of the
// given hashes.
func NewHashWriter(w io.Writer, hashes map[string]hash.Hash) *HashWriter {
	hw := &HashWriter{hashes: hashes}
	writers := make([]io.Writer, 0, len(hashes)+1)
	if w != nil {
		writers = append(writers, w)
	}
	for _, h := range hashes {
		writers = append(writers, h)
	}
	hw.Writer = io.MultiWriter(writers...)
	return hw
}

// NewHashWriterPlain return a HashWriter that does not wrap an output stream.
// It will just compute the checksums of the data written to it.
func NewHashWriterPlain(hashes map[string]hash.Hash) *HashWriter {
	return NewHashWriter(nil, hashes)
}

// Sum returns the named hash of everything written so far, or nil if this
// writer is not computing a hash with that name.
func (hw *HashWriter) Sum(name string) []byte {
	h, ok := hw.hashes[name]
	if !ok {
		return nil
	}
	return h.Sum(nil)
}

// HexSums returns every hash, hex encoded, keyed by name.
func (hw *HashWriter) HexSums() map[string]string {
	result := make(map[string]string, len(hw.hashes))
	for name, h := range hw.hashes {
		result[name] = hex.EncodeToString(h.Sum(nil))
	}
	return result
}
