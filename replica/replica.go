// Package replica packages one version of a preserved object into a bag
// suitable for sending to another repository or to tape.
//
// A replica bag holds a single tar file of the version directory. Replica
// bags are kept in a cache directory laid out as <root>/<home>/<replica id>,
// where home names the repository the object came from.
package replica

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/replication/bagit"
	"github.com/ndlib/replication/command"
	"github.com/ndlib/replication/fixity"
)

// DefaultHome is the home repository used when none is given.
const DefaultHome = "sdr"

// Replica describes a bag holding a copy of one object version.
type Replica struct {
	ID             string
	HomeRepository string
	CreateDate     time.Time
	Bag            *bagit.Bag

	// PayloadSize is the size of the bag's payload in bytes.
	PayloadSize       int64
	PayloadFixityType fixity.TypeID
	PayloadFixity     string
}

// Cache is the directory holding replica bags.
type Cache struct {
	Root string
}

// Path returns where the bag for the given replica lives.
func (c Cache) Path(home, id string) string {
	return filepath.Join(c.Root, home, id)
}

// Bags lists the paths of every bag directory in the cache. A bag directory
// is one holding a bagit.txt file, two levels below the root.
func (c Cache) Bags() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(c.Root, "*", "*", "bagit.txt"))
	if err != nil {
		return nil, err
	}
	var result []string
	for _, m := range matches {
		result = append(result, filepath.Dir(m))
	}
	sort.Strings(result)
	return result, nil
}

// A VersionLocator finds the files of one version of a stored object.
type VersionLocator interface {
	// ObjectID is the identifier of the object, e.g. "druid:jq937jp0017".
	ObjectID() string
	// VersionName is the name of the version directory, e.g. "v0002".
	VersionName() string
	// VersionPath is the directory holding the version's files.
	VersionPath() string
	// ObjectPath is the directory holding all the object's versions.
	ObjectPath() string
}

// ReplicaID is the identifier of the replica of the given object version:
// the part of the object id after the last colon, a dash, and the version
// name.
func ReplicaID(objectID, versionName string) string {
	if i := strings.LastIndex(objectID, ":"); i >= 0 {
		objectID = objectID[i+1:]
	}
	return objectID + "-" + versionName
}

// VersionName returns the directory name of a version number, e.g. "v0002".
func VersionName(version int) string {
	return fmt.Sprintf("v%04d", version)
}

var versionDir = regexp.MustCompile(`^v(\d+)$`)

// StorageVersion locates a version stored in a directory per version,
// named as VersionName gives, inside the object directory.
type StorageVersion struct {
	ID      string
	Path    string // the object directory
	Version int
}

var _ VersionLocator = &StorageVersion{}

// FindVersion returns the given version of the object stored at path. If
// version is 0 the latest version is used.
func FindVersion(objectID, path string, version int) (*StorageVersion, error) {
	if version == 0 {
		entries, err := ioutil.ReadDir(path)
		if err != nil {
			return nil, errors.Wrap(err, "find version")
		}
		for _, e := range entries {
			m := versionDir.FindStringSubmatch(e.Name())
			if m == nil || !e.IsDir() {
				continue
			}
			n, _ := strconv.Atoi(m[1])
			if n > version {
				version = n
			}
		}
		if version == 0 {
			return nil, fmt.Errorf("no versions found in %s", path)
		}
	}
	v := &StorageVersion{ID: objectID, Path: path, Version: version}
	info, err := os.Stat(v.VersionPath())
	if err != nil {
		return nil, errors.Wrap(err, "find version")
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", v.VersionPath())
	}
	return v, nil
}

func (v *StorageVersion) ObjectID() string    { return v.ID }
func (v *StorageVersion) VersionName() string { return VersionName(v.Version) }
func (v *StorageVersion) ObjectPath() string  { return v.Path }
func (v *StorageVersion) VersionPath() string {
	return filepath.Join(v.Path, v.VersionName())
}

// ErrExists is returned by Build when the replica bag is already in the
// cache.
var ErrExists = errors.New("replica bag already exists")

// Builder makes replica bags in a cache.
type Builder struct {
	Cache    Cache
	Home     string           // defaults to DefaultHome
	Executor command.Executor // runs tar, defaults to command.Shell{}
	Clock    clock.Clock      // defaults to the wall clock
}

// Build copies the version into a new sha256 bag in the cache. The bag
// payload is a single tar file, <replica id>.tar, whose paths start with the
// object directory's name. The bag is sealed when Build returns.
func (b *Builder) Build(v VersionLocator) (*Replica, error) {
	home := b.Home
	if home == "" {
		home = DefaultHome
	}
	clk := b.Clock
	if clk == nil {
		clk = clock.New()
	}
	id := ReplicaID(v.ObjectID(), v.VersionName())
	path := b.Cache.Path(home, id)
	if _, err := os.Stat(path); err == nil {
		return nil, errors.Wrapf(ErrExists, "%s", path)
	}
	logger := log.WithFields(log.Fields{"replica": id, "home": home})
	logger.Infoln("Building replica bag from", v.VersionPath())

	bag, err := bagit.Create(path, bagit.Options{
		Types:    fixity.TypeSet{fixity.SHA256},
		Executor: b.Executor,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	tarname := id + ".tar"
	_, err = bag.AddPayloadTarfile(tarname, v.VersionPath(), filepath.Dir(v.ObjectPath()))
	if err != nil {
		return nil, err
	}
	err = bag.Seal()
	if err != nil {
		return nil, err
	}

	r := &Replica{
		ID:                id,
		HomeRepository:    home,
		CreateDate:        clk.Now(),
		Bag:               bag,
		PayloadFixityType: fixity.SHA256,
	}
	size, err := bag.PayloadSize()
	if err != nil {
		return nil, err
	}
	r.PayloadSize = size.Bytes
	m, err := bag.ReadManifestFiles(bagit.Manifest)
	if err != nil {
		return nil, err
	}
	if f := m[tarname]; f != nil {
		r.PayloadFixity = f.Checksums[fixity.SHA256]
	}
	logger.WithField("size", r.PayloadSize).Infoln("Replica bag sealed")
	return r, nil
}
