package bagit

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ndlib/replication/fixity"
	"github.com/ndlib/replication/tarfile"
)

// LinkMode says how a file is placed into the payload directory.
type LinkMode int

const (
	// Copy copies the file content. Symbolic links are followed.
	Copy LinkMode = iota
	// HardLink makes a hard link to the source file.
	HardLink
	// SymLink makes a symbolic link to the absolute path of the source.
	SymLink
)

func (m LinkMode) String() string {
	switch m {
	case Copy:
		return "copy"
	case HardLink:
		return "link"
	case SymLink:
		return "symlink"
	}
	return fmt.Sprintf("LinkMode(%d)", int(m))
}

// ParseLinkMode returns the LinkMode whose String is s.
func ParseLinkMode(s string) (LinkMode, error) {
	for _, m := range []LinkMode{Copy, HardLink, SymLink} {
		if m.String() == s {
			return m, nil
		}
	}
	return Copy, errors.Wrapf(ErrInvalidLinkMode, "%q", s)
}

// WriteMode says whether manifest lines are added to an existing file or
// replace it.
type WriteMode int

const (
	// Append adds lines to the end of the manifest. Writing the same entries
	// twice in this mode duplicates them.
	Append WriteMode = iota
	// Overwrite truncates the manifest first.
	Overwrite
)

func (m WriteMode) flags() int {
	if m == Overwrite {
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	return os.O_WRONLY | os.O_CREATE | os.O_APPEND
}

func (b *Bag) writeBagitTxt() error {
	return b.writeTagFile("bagit.txt", [][2]string{
		{"Tag-File-Character-Encoding", "UTF-8"},
		{"BagIt-Version", Version},
	})
}

// writeTagFile replaces the named tag file with the given properties, in
// order.
func (b *Bag) writeTagFile(name string, props [][2]string) error {
	f, err := os.Create(b.TagPath(name))
	if err != nil {
		return errors.Wrap(err, "write tag file")
	}
	w := bufio.NewWriter(f)
	for _, p := range props {
		fmt.Fprintf(w, "%s: %s\n", p[0], p[1])
	}
	err = w.Flush()
	if err2 := f.Close(); err == nil {
		err = err2
	}
	return errors.Wrap(err, "write tag file")
}

// WriteInfo measures the payload and writes bag-info.txt, replacing any
// previous one.
func (b *Bag) WriteInfo() error {
	size, err := b.PayloadSize()
	if err != nil {
		return err
	}
	b.log.Debugf("Writing bag-info.txt, Payload-Oxum %s", size.Oxum())
	return b.writeTagFile("bag-info.txt", [][2]string{
		{"External-Identifier", b.Name()},
		{"Payload-Oxum", size.Oxum()},
		{"Bag-Size", HumanSize(size.Bytes)},
	})
}

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// HumanSize formats a byte count using binary multiples, e.g. "2.17 KB".
// Sizes of a petabyte or more are still given in TB.
func HumanSize(bytes int64) string {
	count := 0
	size := float64(bytes)
	for size >= 1024 && count < len(sizeUnits)-1 {
		size /= 1024
		count++
	}
	if count == 0 {
		return fmt.Sprintf("%d B", bytes)
	}
	return fmt.Sprintf("%.2f %s", size, sizeUnits[count])
}

// WriteManifestChecksums writes a line "<hex> <file id>" for each entry of m
// to the manifest of the given kind, once for each of the bag's algorithms.
// Nil entries, and entries without a digest for an algorithm, are left out
// of that manifest.
// The paths of the files written are returned.
func (b *Bag) WriteManifestChecksums(kind string, m fixity.Map, mode WriteMode) (map[fixity.TypeID]string, error) {
	ids := m.SortedIDs()
	result := make(map[fixity.TypeID]string)
	for _, t := range b.types {
		path := b.ManifestPath(kind, t)
		f, err := os.OpenFile(path, mode.flags(), 0644)
		if err != nil {
			return result, errors.Wrap(err, "write manifest")
		}
		w := bufio.NewWriter(f)
		for _, id := range ids {
			ff := m[id]
			if ff == nil {
				continue
			}
			value := ff.Checksums[t]
			if value == "" {
				continue
			}
			fmt.Fprintf(w, "%s %s\n", value, id)
		}
		err = w.Flush()
		if err2 := f.Close(); err == nil {
			err = err2
		}
		if err != nil {
			return result, errors.Wrap(err, "write manifest")
		}
		result[t] = path
	}
	b.log.Debugf("Wrote %d entries to %s files for %v", len(ids), kind, b.types)
	return result, nil
}

// AddDirToPayload adds every regular file below dir to the payload, keeping
// its path relative to dir.
func (b *Bag) AddDirToPayload(mode LinkMode, dir string) error {
	m, err := b.computer.ComputeTree(dir, nil)
	if err != nil {
		return err
	}
	return b.AddFilesToPayload(mode, dir, m)
}

// AddFilesToPayload places the file sourceBase/id at data/id for every id in
// m, and then appends m to the payload manifests. Nil entries are skipped.
// Files placed before an error are left in the bag.
func (b *Bag) AddFilesToPayload(mode LinkMode, sourceBase string, m fixity.Map) error {
	payload := b.PayloadPath()
	for _, id := range m.SortedIDs() {
		if m[id] == nil {
			continue
		}
		source := filepath.Join(sourceBase, filepath.FromSlash(id))
		target := filepath.Join(payload, filepath.FromSlash(id))
		err := os.MkdirAll(filepath.Dir(target), 0755)
		if err != nil {
			return errors.Wrap(err, "add payload")
		}
		_, err = CopyFile(mode, source, target)
		if err != nil {
			return err
		}
	}
	_, err := b.WriteManifestChecksums(Manifest, m, Append)
	return err
}

// CopyFile puts source at target using the given mode and returns target.
func CopyFile(mode LinkMode, source, target string) (string, error) {
	var err error
	switch mode {
	case Copy:
		err = copyContent(source, target)
	case HardLink:
		err = os.Link(source, target)
	case SymLink:
		source, err = filepath.Abs(source)
		if err == nil {
			err = os.Symlink(source, target)
		}
	default:
		return "", ErrInvalidLinkMode
	}
	if err != nil {
		return "", errors.Wrapf(err, "%s %s", mode, source)
	}
	return target, nil
}

func copyContent(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if err2 := out.Close(); err == nil {
		err = err2
	}
	return err
}

// AddPayloadTarfile tars sourceFull into data/tarfileID. Paths inside the
// archive are relative to sourceBase. The fixity of the archive is appended
// to the payload manifests. The Tarfile is returned so the caller can list
// or inspect it.
func (b *Bag) AddPayloadTarfile(tarfileID, sourceFull, sourceBase string) (*tarfile.Tarfile, error) {
	payload := b.PayloadPath()
	tarpath := filepath.Join(payload, filepath.FromSlash(tarfileID))
	tf := tarfile.New(b.exec)
	for _, err := range []error{
		tf.SetTarfileBasePath(payload),
		tf.SetTarfileFullPath(tarpath),
		tf.SetSourceBasePath(sourceBase),
		tf.SetSourceFullPath(sourceFull),
	} {
		if err != nil {
			return nil, err
		}
	}
	err := os.MkdirAll(filepath.Dir(tarpath), 0755)
	if err != nil {
		return nil, errors.Wrap(err, "add payload tarfile")
	}
	b.log.Debugf("Creating payload tarfile %s from %s", tarfileID, sourceFull)
	err = tf.Create()
	if err != nil {
		return nil, err
	}
	f, err := b.computer.ComputeFile(tarpath, payload)
	if err != nil {
		return nil, err
	}
	_, err = b.WriteManifestChecksums(Manifest, fixity.Map{f.FileID: f}, Append)
	if err != nil {
		return nil, err
	}
	return tf, nil
}

// Seal writes bag-info.txt and then replaces the tagmanifests with the
// checksums of the bag's tag files.
func (b *Bag) Seal() error {
	err := b.WriteInfo()
	if err != nil {
		return err
	}
	m, err := b.GenerateTagChecksums()
	if err != nil {
		return err
	}
	_, err = b.WriteManifestChecksums(TagManifest, m, Overwrite)
	return err
}
