// Package bagit implements enough of the BagIt specification to build and
// verify the bags used to hold preservation replicas. Bags live directly on
// the file system: a bag is a directory holding a "data/" payload directory,
// the tag files bagit.txt and bag-info.txt, and one manifest and tagmanifest
// file per checksum algorithm.
//
// A bag moves through a few stages. Create lays out the directory and writes
// bagit.txt. Payload files are then added, either by copying or linking files
// into "data/" (AddDirToPayload, AddFilesToPayload) or by writing a tar file
// there (AddPayloadTarfile); each addition appends lines to the payload
// manifests. Finally Seal writes bag-info.txt and the tagmanifests. Verify may
// be run on a populated or sealed bag and never changes anything.
//
// Specific items not implemented are fetch files and holey bags. Tag file
// order and repeated tags are not preserved when reading.
//
// A Bag has no locking. At most one goroutine or process may change a bag at
// a time, though any number may verify it.
//
// The BagIt spec can be found at https://tools.ietf.org/html/draft-kunze-bagit-11.
package bagit

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/replication/command"
	"github.com/ndlib/replication/fixity"
)

const (
	// Version is the version of the BagIt specification this package implements.
	Version = "0.97"

	// PayloadDir is the name of the payload directory inside a bag.
	PayloadDir = "data"

	// Manifest and TagManifest are the kinds of manifest file. The file for
	// a given algorithm is named "<kind>-<algorithm>.txt".
	Manifest    = "manifest"
	TagManifest = "tagmanifest"
)

// Bag is a BagIt bag stored in a directory.
type Bag struct {
	root     string
	types    fixity.TypeSet
	computer *fixity.Computer
	exec     command.Executor
	log      log.FieldLogger
}

// Options configures a Bag. The zero value is usable.
type Options struct {
	// Types are the algorithms written to new manifests. Defaults to
	// fixity.DefaultTypes().
	Types fixity.TypeSet

	// Workers is the number of files digested at once. Defaults to
	// fixity.DefaultWorkers.
	Workers int

	// Wrap, if set, wraps every file read while computing fixity.
	Wrap func(io.Reader) io.Reader

	// Executor runs the tar command. Defaults to command.Shell{}.
	Executor command.Executor

	// Logger receives debug messages. Defaults to the standard logrus logger.
	Logger log.FieldLogger
}

func newBag(root string, opts Options) (*Bag, error) {
	types := opts.Types
	if len(types) == 0 {
		types = fixity.DefaultTypes()
	}
	c, err := fixity.NewComputer(types...)
	if err != nil {
		return nil, err
	}
	if opts.Workers > 0 {
		c.Workers = opts.Workers
	}
	c.Wrap = opts.Wrap
	x := opts.Executor
	if x == nil {
		x = command.Shell{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "bag path")
	}
	return &Bag{
		root:     root,
		types:    c.Types,
		computer: c,
		exec:     x,
		log:      logger.WithField("bag", filepath.Base(root)),
	}, nil
}

// Create makes a new, empty bag at path. Parent directories are created as
// needed. If a bag already exists there its bagit.txt is rewritten and
// nothing else is touched.
func Create(path string, opts Options) (*Bag, error) {
	b, err := newBag(path, opts)
	if err != nil {
		return nil, err
	}
	err = os.MkdirAll(b.PayloadPath(), 0755)
	if err != nil {
		return nil, errors.Wrap(err, "create bag")
	}
	err = b.writeBagitTxt()
	if err != nil {
		return nil, err
	}
	b.log.Debugln("Created bag at", b.root)
	return b, nil
}

// Open returns the bag at path. An error wrapping ErrNotABag is returned
// unless both the directory and its bagit.txt exist. Nothing else about the
// bag is checked, use Verify for that.
func Open(path string, opts Options) (*Bag, error) {
	b, err := newBag(path, opts)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(b.root)
	if err != nil || !info.IsDir() {
		return nil, errors.Wrapf(ErrNotABag, "no bag directory at %s", b.root)
	}
	_, err = os.Stat(b.TagPath("bagit.txt"))
	if err != nil {
		return nil, errors.Wrapf(ErrNotABag, "no bagit.txt in %s", b.root)
	}
	return b, nil
}

// Path returns the absolute path of the bag's directory.
func (b *Bag) Path() string { return b.root }

// Name is the name of the bag's directory.
func (b *Bag) Name() string { return filepath.Base(b.root) }

// PayloadPath returns the path of the payload directory.
func (b *Bag) PayloadPath() string { return filepath.Join(b.root, PayloadDir) }

// TagPath returns the path of a file in the bag's top directory.
func (b *Bag) TagPath(name string) string { return filepath.Join(b.root, name) }

// ManifestPath returns the path of the manifest file of the given kind for
// the given algorithm, e.g. "manifest-sha256.txt".
func (b *Bag) ManifestPath(kind string, t fixity.TypeID) string {
	return b.TagPath(kind + "-" + string(t) + ".txt")
}

// Types returns the algorithms used when writing manifests.
func (b *Bag) Types() fixity.TypeSet {
	return append(fixity.TypeSet(nil), b.types...)
}

// SetTypes changes the algorithms used for new manifest entries.
func (b *Bag) SetTypes(types ...fixity.TypeID) error {
	ts, err := fixity.Validate(types...)
	if err != nil {
		return err
	}
	b.setTypes(fixity.TypeSet(nil).Union(ts))
	return nil
}

func (b *Bag) setTypes(ts fixity.TypeSet) {
	b.types = ts
	b.computer = b.computer.WithTypes(ts)
}
