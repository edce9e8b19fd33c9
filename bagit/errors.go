package bagit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/ndlib/replication/fixity"
)

var (
	// ErrNotABag means a directory is missing or has no bagit.txt file.
	ErrNotABag = errors.New("Not a bag")

	// ErrInvalidLinkMode means a LinkMode outside Copy, HardLink, and
	// SymLink was used.
	ErrInvalidLinkMode = errors.New("Invalid link mode")
)

// MissingComponentError is returned by VerifyStructure when a required file
// or directory is absent.
type MissingComponentError struct {
	Name string // e.g. "bag-info.txt"
	Path string
}

func (e *MissingComponentError) Error() string {
	return fmt.Sprintf("Missing bag component %s: %s", e.Name, e.Path)
}

// Size is the total size of a bag's payload.
type Size struct {
	Bytes int64
	Files int64
}

// Oxum formats the size as a Payload-Oxum value, "<bytes>.<files>".
func (s Size) Oxum() string {
	return fmt.Sprintf("%d.%d", s.Bytes, s.Files)
}

// SizeMismatchError is returned when the Payload-Oxum recorded in
// bag-info.txt differs from the payload on disk.
type SizeMismatchError struct {
	Recorded Size
	Actual   Size
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("Payload size mismatch: bag-info.txt has %s, payload has %s",
		e.Recorded.Oxum(), e.Actual.Oxum())
}

// ManifestError is returned when the checksums recorded in a bag's manifests
// disagree with those of the files on disk. Diff holds, for each file that
// disagrees, the differing values labeled "manifest" and "bag".
type ManifestError struct {
	Kind string // Manifest or TagManifest
	Diff map[string]fixity.Diff
}

// Files returns the ids of the files which failed, in sorted order.
func (e *ManifestError) Files() []string {
	var ids []string
	for id := range e.Diff {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *ManifestError) Error() string {
	var parts []string
	for _, id := range e.Files() {
		var types []string
		for t := range e.Diff[id] {
			types = append(types, string(t))
		}
		sort.Strings(types)
		parts = append(parts, id+" ("+strings.Join(types, ",")+")")
	}
	return fmt.Sprintf("%s verification failed for %s", e.Kind, strings.Join(parts, ", "))
}

// IsVerificationFailure returns true if err reports a problem with the
// contents of a bag, as opposed to a failure to examine it.
func IsVerificationFailure(err error) bool {
	switch errors.Cause(err).(type) {
	case *MissingComponentError, *SizeMismatchError, *ManifestError:
		return true
	}
	return errors.Cause(err) == ErrNotABag
}
