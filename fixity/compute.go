package fixity

import (
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ndlib/replication/util"
)

// BlockSize is the size of the chunks read from a file and handed to every
// digest.
const BlockSize = 8192

// DefaultWorkers is the number of files digested at the same time by
// ComputeTree when Workers is not set.
const DefaultWorkers = 4

// A Computer measures the fixity of files on disk. The zero value is not
// usable, use NewComputer. A Computer is safe for concurrent use as long as
// its fields are not changed.
type Computer struct {
	// Types are the checksum algorithms computed for each file.
	Types TypeSet

	// Workers is the number of files ComputeTree reads at a time.
	Workers int

	// Wrap, if not nil, is applied to every file before it is read. It is
	// used to throttle reads.
	Wrap func(io.Reader) io.Reader
}

// NewComputer returns a Computer for the given algorithms. If none are given
// the DefaultTypes are used.
func NewComputer(types ...TypeID) (*Computer, error) {
	if len(types) == 0 {
		types = DefaultTypes()
	}
	ts, err := Validate(types...)
	if err != nil {
		return nil, err
	}
	return &Computer{
		Types:   TypeSet(nil).Union(ts),
		Workers: DefaultWorkers,
	}, nil
}

// WithTypes returns a copy of c computing the given algorithms instead.
func (c *Computer) WithTypes(types TypeSet) *Computer {
	c2 := *c
	c2.Types = TypeSet(nil).Union(types)
	return &c2
}

// ComputeFile reads the file at path once and returns its size and digests.
// The file id is path made relative to base, with forward slashes.
func (c *Computer) ComputeFile(path, base string) (*FileFixity, error) {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return nil, errors.Wrapf(err, "fixity %s", path)
	}
	hashes := make(map[string]hash.Hash, len(c.Types))
	for _, t := range c.Types {
		h, err := newHash(t)
		if err != nil {
			return nil, err
		}
		hashes[string(t)] = h
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "fixity")
	}
	defer f.Close()

	var r io.Reader = f
	if c.Wrap != nil {
		r = c.Wrap(r)
	}
	hw := util.NewHashWriterPlain(hashes)
	buf := make([]byte, BlockSize)
	var size int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			hw.Write(buf[:n])
			size += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "fixity %s", path)
		}
	}

	result := New(filepath.ToSlash(rel))
	result.Bytes = size
	for name, sum := range hw.HexSums() {
		result.Checksums[TypeID(name)] = sum
	}
	return result, nil
}

// ComputeTree returns the fixity of a set of regular files, keyed by their
// path relative to base. If paths is nil every file found by RegularFiles
// is included. Otherwise only the given paths are used and directories among
// them are ignored. Symbolic links are read through to their targets.
//
// Files are digested by up to Workers goroutines. The first error stops the
// computation and is returned.
func (c *Computer) ComputeTree(base string, paths []string) (Map, error) {
	var files []string
	var err error
	if paths == nil {
		files, err = RegularFiles(base)
	} else {
		files, err = statRegular(paths)
	}
	if err != nil {
		return nil, err
	}

	workers := c.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	result := make(Map, len(files))
	var mu sync.Mutex
	var g errgroup.Group
	gate := util.NewGate(workers)
	for _, path := range files {
		if !gate.Enter() {
			break
		}
		path := path
		g.Go(func() error {
			defer gate.Leave()
			ff, err := c.ComputeFile(path, base)
			if err != nil {
				gate.Stop()
				return err
			}
			mu.Lock()
			result[ff.FileID] = ff
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// RegularFiles lists every regular file below root. Symbolic links to
// regular files are included, but the walk does not descend into linked
// directories. Dangling links are skipped.
func RegularFiles(root string) ([]string, error) {
	var result []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		mode := info.Mode()
		if mode&os.ModeSymlink != 0 {
			target, err := os.Stat(path)
			if err != nil {
				return nil
			}
			mode = target.Mode()
		}
		if mode.IsRegular() {
			result = append(result, path)
		}
		return nil
	})
	return result, errors.Wrap(err, "fixity walk")
}

func statRegular(paths []string) ([]string, error) {
	var result []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.Wrap(err, "fixity")
		}
		if info.Mode().IsRegular() {
			result = append(result, p)
		}
	}
	return result, nil
}

// UnknownLengthError is returned by FromValues for digests whose length does
// not match any supported algorithm.
type UnknownLengthError struct {
	FileID string
	Values []string
}

func (e *UnknownLengthError) Error() string {
	return fmt.Sprintf("%s: cannot determine the digest type of %v", e.FileID, e.Values)
}

// FromValues builds a FileFixity from digests supplied by a caller instead
// of measured from a file. The algorithm of each value is inferred from its
// length. Values of an unknown length are not recorded, and cause an
// *UnknownLengthError to be returned along with the record holding the
// recognized values.
func FromValues(fileID string, values []string) (*FileFixity, error) {
	result := New(fileID)
	var bad []string
	for _, v := range values {
		ct, ok := TypeForLength(len(v))
		if !ok {
			bad = append(bad, v)
			continue
		}
		result.Checksums[ct.ID] = strings.ToLower(v)
	}
	if len(bad) > 0 {
		return result, &UnknownLengthError{FileID: fileID, Values: bad}
	}
	return result, nil
}
