// Package tarfile creates, lists, and extracts tar archives by running the
// system tar command.
//
// A Tarfile describes a single archive job: where the archive lives, what is
// being archived, and where it should be extracted. The command lines it
// builds are stable, since other tools and tests depend on their exact form.
package tarfile

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/replication/command"
)

// Format is the archive format passed to tar.
type Format string

// The archive formats tar can write.
const (
	POSIX Format = "posix" // POSIX 1003.1-2001 (pax) format
	GNU   Format = "gnu"   // GNU tar 1.13.x format
)

var (
	// ErrNoPath means an empty path was given to a setter.
	ErrNoPath = errors.New("No pathname specified")

	// ErrNoTarfile means the full path of the archive was never set.
	ErrNoTarfile = errors.New("Tarfile pathname is nil")

	// ErrNoTarfileBase means the base path of the archive was never set.
	ErrNoTarfileBase = errors.New("Tarfile basepath is nil")

	// ErrNoSource means the path being archived was never set.
	ErrNoSource = errors.New("Source pathname is nil")

	// ErrNoSourceBase means the base path of the source was never set.
	ErrNoSourceBase = errors.New("Source basepath is nil")
)

// Tarfile is a tar archive containing a set of files.
type Tarfile struct {
	Format      Format
	Dereference bool // archive the files symbolic links point to
	Verify      bool // have tar verify the archive after writing it

	// MultiVolume is reserved. Multi-volume archives are not supported and
	// this field does not change any command.
	MultiVolume bool

	exec command.Executor

	tarfileBase string
	tarfileFull string
	sourceBase  string
	sourceFull  string
	target      string
}

// New returns a Tarfile with the default options: posix format,
// dereferencing symbolic links, and no verification. Commands are run with
// x, or with a command.Shell if x is nil.
func New(x command.Executor) *Tarfile {
	if x == nil {
		x = command.Shell{}
	}
	return &Tarfile{
		Format:      POSIX,
		Dereference: true,
		exec:        x,
	}
}

func absolute(p string) (string, error) {
	if p == "" {
		return "", ErrNoPath
	}
	return filepath.Abs(p)
}

// SetTarfileBasePath sets the directory the archive's id is relative to.
func (t *Tarfile) SetTarfileBasePath(p string) (err error) {
	t.tarfileBase, err = absolute(p)
	return
}

// SetTarfileFullPath sets the location of the archive.
func (t *Tarfile) SetTarfileFullPath(p string) (err error) {
	t.tarfileFull, err = absolute(p)
	return
}

// SetSourceBasePath sets the directory tar changes to before archiving.
// Paths inside the archive are relative to it.
func (t *Tarfile) SetSourceBasePath(p string) (err error) {
	t.sourceBase, err = absolute(p)
	return
}

// SetSourceFullPath sets the file or directory to archive.
func (t *Tarfile) SetSourceFullPath(p string) (err error) {
	t.sourceFull, err = absolute(p)
	return
}

// SetTargetPath sets the directory to extract the archive into.
func (t *Tarfile) SetTargetPath(p string) (err error) {
	t.target, err = absolute(p)
	return
}

// TarfileBasePath returns the directory the archive's id is relative to.
func (t *Tarfile) TarfileBasePath() (string, error) {
	if t.tarfileBase == "" {
		return "", ErrNoTarfileBase
	}
	return t.tarfileBase, nil
}

// TarfileFullPath returns the location of the archive, or "" if not set.
func (t *Tarfile) TarfileFullPath() string { return t.tarfileFull }

// TarfileRelativePath returns the archive's location relative to its base
// path. This is the id of the archive inside a bag payload.
func (t *Tarfile) TarfileRelativePath() (string, error) {
	base, err := t.TarfileBasePath()
	if err != nil {
		return "", err
	}
	if t.tarfileFull == "" {
		return "", ErrNoTarfile
	}
	rel, err := filepath.Rel(base, t.tarfileFull)
	return filepath.ToSlash(rel), err
}

// SourceFullPath returns the file or directory being archived.
func (t *Tarfile) SourceFullPath() (string, error) {
	if t.sourceFull == "" {
		return "", ErrNoSource
	}
	return t.sourceFull, nil
}

// SourceBasePath returns the directory tar changes to, or "" if not set.
func (t *Tarfile) SourceBasePath() string { return t.sourceBase }

// SourceRelativePath returns the source relative to the source base path.
// It is the name the source has inside the archive.
func (t *Tarfile) SourceRelativePath() (string, error) {
	full, err := t.SourceFullPath()
	if err != nil {
		return "", err
	}
	if t.sourceBase == "" {
		return "", ErrNoSourceBase
	}
	rel, err := filepath.Rel(t.sourceBase, full)
	return filepath.ToSlash(rel), err
}

// TargetPath returns the extraction directory, or "" if not set.
func (t *Tarfile) TargetPath() string { return t.target }

// CreateCommand returns the shell command which creates the archive.
func (t *Tarfile) CreateCommand() (string, error) {
	if t.tarfileFull == "" {
		return "", ErrNoTarfile
	}
	rel, err := t.SourceRelativePath()
	if err != nil {
		return "", err
	}
	cmd := fmt.Sprintf("tar --create --file=%s --format=%s ", t.tarfileFull, t.Format)
	if t.Dereference {
		cmd += "--dereference "
	}
	if t.Verify {
		cmd += "--verify "
	}
	if t.sourceBase != "" {
		cmd += fmt.Sprintf("--directory='%s' ", t.sourceBase)
	}
	return cmd + rel, nil
}

// Create writes the archive.
func (t *Tarfile) Create() error {
	cmd, err := t.CreateCommand()
	if err != nil {
		return err
	}
	_, err = t.run(cmd)
	return err
}

// ListCommand returns the shell command which lists the archive contents.
func (t *Tarfile) ListCommand() (string, error) {
	if t.tarfileFull == "" {
		return "", ErrNoTarfile
	}
	return fmt.Sprintf("tar --list --file=%s ", t.tarfileFull), nil
}

// List returns the output of tar's listing of the archive: one entry per
// line, with directories ending in a slash.
func (t *Tarfile) List() (string, error) {
	cmd, err := t.ListCommand()
	if err != nil {
		return "", err
	}
	return t.run(cmd)
}

// ExtractCommand returns the shell command which extracts the archive. The
// archive is extracted into the target path if one was set, otherwise into
// the working directory.
func (t *Tarfile) ExtractCommand() (string, error) {
	if t.tarfileFull == "" {
		return "", ErrNoTarfile
	}
	cmd := fmt.Sprintf("tar --extract --file=%s ", t.tarfileFull)
	if t.target != "" {
		cmd += fmt.Sprintf("--directory='%s' ", t.target)
	}
	return cmd, nil
}

// Extract unpacks the archive and returns tar's output.
func (t *Tarfile) Extract() (string, error) {
	cmd, err := t.ExtractCommand()
	if err != nil {
		return "", err
	}
	return t.run(cmd)
}

func (t *Tarfile) run(cmd string) (string, error) {
	log.WithField("cmd", cmd).Debugln("Running tar")
	out, err := t.exec.Execute(cmd)
	if err != nil {
		return out, errors.Wrapf(err, "tar %s", t.tarfileFull)
	}
	return out, nil
}
