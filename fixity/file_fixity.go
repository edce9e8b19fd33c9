package fixity

import (
	"hash/fnv"
	"sort"
)

// FileFixity holds the properties used to decide whether two copies of a
// file have the same content.
type FileFixity struct {
	// FileID is the path of the file relative to its base directory, using
	// forward slashes. For payload files this is relative to the payload
	// directory, for tag files it is relative to the bag directory.
	FileID string

	// Bytes is the size of the file, or -1 if it was not measured.
	Bytes int64

	// Checksums maps each algorithm to a lower case hex digest.
	Checksums map[TypeID]string
}

// Map is a collection of FileFixity records indexed by file id.
type Map map[string]*FileFixity

// New returns an empty FileFixity for the given file id.
func New(fileID string) *FileFixity {
	return &FileFixity{
		FileID:    fileID,
		Bytes:     -1,
		Checksums: make(map[TypeID]string),
	}
}

// Get returns the digest stored for the named algorithm, or "" if there is
// none. The name is case-insensitive.
func (f *FileFixity) Get(name string) string {
	id, ok := Lookup(name)
	if !ok {
		return ""
	}
	return f.Checksums[id]
}

// Set stores the digest for the named algorithm. The name is
// case-insensitive. An *InvalidTypeError is returned for unknown names.
func (f *FileFixity) Set(name string, value string) error {
	id, ok := Lookup(name)
	if !ok {
		return &InvalidTypeError{Types: []string{name}}
	}
	if f.Checksums == nil {
		f.Checksums = make(map[TypeID]string)
	}
	f.Checksums[id] = value
	return nil
}

// Types returns the algorithms which have a digest in this record, in the
// order of ValidTypes.
func (f *FileFixity) Types() TypeSet {
	var result TypeSet
	for _, ct := range ValidTypes {
		if _, ok := f.Checksums[ct.ID]; ok {
			result = append(result, ct.ID)
		}
	}
	return result
}

// Equals returns true if f and other have at least one algorithm in common
// and agree on the digest of every algorithm they have in common. Two
// records with nothing in common are never equal. Neither the file id nor
// the size take part in the comparison.
func (f *FileFixity) Equals(other *FileFixity) bool {
	common := f.intersect(other)
	if len(common) == 0 {
		return false
	}
	for _, t := range common {
		if f.Checksums[t] != other.Checksums[t] {
			return false
		}
	}
	return true
}

// Difference holds the two sides of a digest disagreement, keyed by the
// labels passed to Diff. An absent digest is reported as "".
type Difference map[string]string

// Diff maps each algorithm whose digests disagree to the two values.
type Diff map[TypeID]Difference

// Diff compares the digests of f and other. Only the algorithms both records
// share are compared, unless they share none, in which case every algorithm
// present on either side is reported. The values from f are labeled with
// left and those from other with right. Diff returns nil if nothing differs.
func (f *FileFixity) Diff(other *FileFixity, left, right string) Diff {
	keys := f.intersect(other)
	if len(keys) == 0 {
		keys = f.union(other)
	}
	var result Diff
	for _, t := range keys {
		a := f.Checksums[t]
		b := other.Checksums[t]
		if a == b {
			continue
		}
		if result == nil {
			result = make(Diff)
		}
		result[t] = Difference{left: a, right: b}
	}
	return result
}

// IdentityHash is computed from the file id alone, so it can be used to
// index records by file. It is not consistent with Equals: two records for
// the same file with disjoint algorithms hash the same but are not Equal.
func (f *FileFixity) IdentityHash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(f.FileID))
	return h.Sum64()
}

func (f *FileFixity) intersect(other *FileFixity) TypeSet {
	var result TypeSet
	for _, t := range f.Types() {
		if _, ok := other.Checksums[t]; ok {
			result = append(result, t)
		}
	}
	return result
}

func (f *FileFixity) union(other *FileFixity) TypeSet {
	return f.Types().Union(other.Types())
}

// Checksums strips the sizes from m, returning a copy of the digests of each
// file keyed the same way as m. Nil entries are left out.
func Checksums(m Map) map[string]map[TypeID]string {
	result := make(map[string]map[TypeID]string, len(m))
	for id, f := range m {
		if f == nil {
			continue
		}
		sums := make(map[TypeID]string, len(f.Checksums))
		for t, v := range f.Checksums {
			sums[t] = v
		}
		result[id] = sums
	}
	return result
}

// SortedIDs returns the file ids in m in lexical order.
func (m Map) SortedIDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
