// Package fixity computes and compares the checksums used to prove that
// preserved files are unchanged.
//
// A FileFixity holds the size and one or more hex encoded digests for a
// single file, identified by its path relative to some base directory. A
// Computer produces FileFixity records by reading files, feeding every block
// to all the requested digest algorithms in a single pass.
//
// The supported algorithms are md5, sha1, sha256, sha384, and sha512. Each
// produces a hex string of a distinct length, so the length of a digest is
// enough to know which algorithm made it.
package fixity

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"
)

// TypeID names a checksum algorithm, e.g. "sha256".
type TypeID string

// The supported checksum algorithms.
const (
	MD5    TypeID = "md5"
	SHA1   TypeID = "sha1"
	SHA256 TypeID = "sha256"
	SHA384 TypeID = "sha384"
	SHA512 TypeID = "sha512"
)

// ChecksumType describes a supported checksum algorithm.
type ChecksumType struct {
	ID        TypeID
	HexLength int      // length of the digest when hex encoded
	Names     []string // display names, e.g. "SHA-256"
}

// ValidTypes lists every supported algorithm. The hex lengths are unique.
var ValidTypes = []ChecksumType{
	{MD5, 32, []string{"MD5"}},
	{SHA1, 40, []string{"SHA-1", "SHA1"}},
	{SHA256, 64, []string{"SHA-256", "SHA256"}},
	{SHA384, 96, []string{"SHA-384", "SHA384"}},
	{SHA512, 128, []string{"SHA-512", "SHA512"}},
}

// ValidIDs returns the ids of all the supported algorithms, in the order of
// ValidTypes.
func ValidIDs() TypeSet {
	result := make(TypeSet, 0, len(ValidTypes))
	for _, ct := range ValidTypes {
		result = append(result, ct.ID)
	}
	return result
}

// DefaultTypes returns the algorithms used when nothing else is configured.
// A new slice is returned each time, so callers may modify it.
func DefaultTypes() TypeSet {
	return TypeSet{SHA1, SHA256}
}

// InvalidTypeError is returned when an unsupported algorithm is requested.
type InvalidTypeError struct {
	Types []string
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("Invalid digest type specified: %v", e.Types)
}

// Validate returns types unchanged if every entry is a supported algorithm.
// Otherwise an *InvalidTypeError listing all the unknown ids is returned.
func Validate(types ...TypeID) (TypeSet, error) {
	var bad []string
	for _, t := range types {
		if !isValid(t) {
			bad = append(bad, string(t))
		}
	}
	if len(bad) > 0 {
		return nil, &InvalidTypeError{Types: bad}
	}
	return TypeSet(types), nil
}

// ParseTypes converts a list of names into a validated TypeSet. Names are
// resolved with Lookup, so "SHA-256" and "sha256" are equivalent.
func ParseTypes(names []string) (TypeSet, error) {
	var result TypeSet
	var bad []string
	for _, name := range names {
		id, ok := Lookup(name)
		if !ok {
			bad = append(bad, name)
			continue
		}
		result = result.Add(id)
	}
	if len(bad) > 0 {
		return nil, &InvalidTypeError{Types: bad}
	}
	return result, nil
}

func isValid(id TypeID) bool {
	for _, ct := range ValidTypes {
		if ct.ID == id {
			return true
		}
	}
	return false
}

// Lookup resolves a checksum name to its id. The match is case-insensitive
// and also accepts the display names.
func Lookup(name string) (TypeID, bool) {
	name = strings.TrimSpace(name)
	for _, ct := range ValidTypes {
		if strings.EqualFold(name, string(ct.ID)) {
			return ct.ID, true
		}
		for _, n := range ct.Names {
			if strings.EqualFold(name, n) {
				return ct.ID, true
			}
		}
	}
	return "", false
}

// TypeForLength returns the algorithm whose hex digests have the given
// length. The boolean is false if no algorithm matches.
func TypeForLength(length int) (ChecksumType, bool) {
	for _, ct := range ValidTypes {
		if ct.HexLength == length {
			return ct, true
		}
	}
	return ChecksumType{}, false
}

// newHash returns a fresh digest for the given algorithm.
func newHash(id TypeID) (hash.Hash, error) {
	switch id {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	}
	return nil, &InvalidTypeError{Types: []string{string(id)}}
}

// TypeSet is an ordered list of checksum algorithms without duplicates.
type TypeSet []TypeID

// Contains returns true if id is in the set.
func (ts TypeSet) Contains(id TypeID) bool {
	for _, t := range ts {
		if t == id {
			return true
		}
	}
	return false
}

// Add returns the set with id appended, if it was not already present.
func (ts TypeSet) Add(id TypeID) TypeSet {
	if ts.Contains(id) {
		return ts
	}
	return append(ts, id)
}

// Union returns a new set holding the entries of ts followed by any entries
// of other not already in ts.
func (ts TypeSet) Union(other TypeSet) TypeSet {
	result := make(TypeSet, 0, len(ts)+len(other))
	for _, t := range ts {
		result = result.Add(t)
	}
	for _, t := range other {
		result = result.Add(t)
	}
	return result
}

func (ts TypeSet) String() string {
	s := make([]string, len(ts))
	for i := range ts {
		s[i] = string(ts[i])
	}
	return strings.Join(s, ",")
}
