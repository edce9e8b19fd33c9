package bagit

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/ndlib/replication/fixity"
)

// PayloadSize walks the payload directory and totals the size and number of
// its files. Symbolic links to files count with the size of their target.
func (b *Bag) PayloadSize() (Size, error) {
	var size Size
	files, err := fixity.RegularFiles(b.PayloadPath())
	if err != nil {
		return size, err
	}
	for _, name := range files {
		info, err := os.Stat(name)
		if err != nil {
			return size, errors.Wrap(err, "payload size")
		}
		size.Bytes += info.Size()
		size.Files++
	}
	return size, nil
}

// VerifyPayloadSize returns a *SizeMismatchError unless the Payload-Oxum in
// bag-info.txt matches the payload on disk.
func (b *Bag) VerifyPayloadSize() error {
	recorded, err := b.InfoPayloadSize()
	if err != nil {
		return err
	}
	actual, err := b.PayloadSize()
	if err != nil {
		return err
	}
	if recorded != actual {
		return &SizeMismatchError{Recorded: recorded, Actual: actual}
	}
	return nil
}

// GenerateTagChecksums computes the fixity of the files directly inside the
// bag directory, other than the tagmanifests themselves.
func (b *Bag) GenerateTagChecksums() (fixity.Map, error) {
	entries, err := ioutil.ReadDir(b.root)
	if err != nil {
		return nil, errors.Wrap(err, "tag checksums")
	}
	var paths []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), TagManifest) {
			continue
		}
		paths = append(paths, filepath.Join(b.root, e.Name()))
	}
	if len(paths) == 0 {
		return fixity.Map{}, nil
	}
	return b.computer.ComputeTree(b.root, paths)
}

// GeneratePayloadChecksums computes the fixity of every file in the payload.
func (b *Bag) GeneratePayloadChecksums() (fixity.Map, error) {
	return b.computer.ComputeTree(b.PayloadPath(), nil)
}

// ManifestDiff compares recorded manifest entries against the actual ones.
// A file missing on either side is compared as a record with no checksums.
// The result maps each file that is not Equal to the difference, labeled
// "manifest" and "bag". It is empty when everything matches.
func ManifestDiff(recorded, actual fixity.Map) map[string]fixity.Diff {
	result := make(map[string]fixity.Diff)
	ids := make(map[string]struct{}, len(recorded))
	for id := range recorded {
		ids[id] = struct{}{}
	}
	for id := range actual {
		ids[id] = struct{}{}
	}
	for id := range ids {
		r := recorded[id]
		if r == nil {
			r = fixity.New(id)
		}
		a := actual[id]
		if a == nil {
			a = fixity.New(id)
		}
		if r.Equals(a) {
			continue
		}
		result[id] = r.Diff(a, "manifest", "bag")
	}
	return result
}

// VerifyManifests returns a *ManifestError if recorded and actual differ.
func VerifyManifests(kind string, recorded, actual fixity.Map) error {
	diff := ManifestDiff(recorded, actual)
	if len(diff) > 0 {
		return &ManifestError{Kind: kind, Diff: diff}
	}
	return nil
}

// VerifyTagManifests checks the tag files against the tagmanifests.
func (b *Bag) VerifyTagManifests() error {
	recorded, err := b.ReadManifestFiles(TagManifest)
	if err != nil {
		return err
	}
	actual, err := b.GenerateTagChecksums()
	if err != nil {
		return err
	}
	return VerifyManifests(TagManifest, recorded, actual)
}

// VerifyPayloadManifests checks the payload files against the manifests.
func (b *Bag) VerifyPayloadManifests() error {
	recorded, err := b.ReadManifestFiles(Manifest)
	if err != nil {
		return err
	}
	actual, err := b.GeneratePayloadChecksums()
	if err != nil {
		return err
	}
	return VerifyManifests(Manifest, recorded, actual)
}

// VerifyStructure returns a *MissingComponentError unless the payload
// directory, the tag files, and the sha256 manifest and tagmanifest exist.
// sha256 is required whatever types the bag was configured with.
func (b *Bag) VerifyStructure() error {
	required := []string{
		PayloadDir,
		"bagit.txt",
		"bag-info.txt",
		Manifest + "-sha256.txt",
		TagManifest + "-sha256.txt",
	}
	for _, name := range required {
		path := b.TagPath(name)
		if _, err := os.Stat(path); err != nil {
			return &MissingComponentError{Name: name, Path: path}
		}
	}
	return nil
}

// Verify checks, in order, the bag structure, the tag manifests, the payload
// size, and the payload manifests. It stops at the first failure.
func (b *Bag) Verify() error {
	steps := []func() error{
		b.VerifyStructure,
		b.VerifyTagManifests,
		b.VerifyPayloadSize,
		b.VerifyPayloadManifests,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	b.log.Debugln("Bag verified")
	return nil
}
