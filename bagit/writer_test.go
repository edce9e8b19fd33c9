package bagit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndlib/replication/command"
	"github.com/ndlib/replication/fixity"
)

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "bagit")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	b, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func countLines(t *testing.T, path string) int {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	require.NoError(t, scanner.Err())
	return n
}

func sha256hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// sourceTree makes a directory of four files and returns its path and the
// total number of bytes.
func sourceTree(t *testing.T) (string, int64) {
	dir := filepath.Join(tempDir(t), "source")
	files := map[string]string{
		"page-1.txt":          "first page",
		"page-2.txt":          "second page",
		"images/page-1.jpg":   "not really a jpeg",
		"images/thumbs/1.gif": "tiny",
	}
	var total int64
	for name, content := range files {
		writeFile(t, filepath.Join(dir, name), content)
		total += int64(len(content))
	}
	return dir, total
}

func TestHumanSize(t *testing.T) {
	var table = []struct {
		input  int64
		output string
	}{
		{0, "0 B"},
		{256, "256 B"},
		{1023, "1023 B"},
		{1024, "1.00 KB"},
		{2222, "2.17 KB"},
		{1 << 20, "1.00 MB"},
		{1 << 30, "1.00 GB"},
		{1 << 40, "1.00 TB"},
		{1 << 50, "1024.00 TB"},
	}

	for _, test := range table {
		out := HumanSize(test.input)
		if out != test.output {
			t.Errorf("HumanSize(%d): Received %s, expected %s", test.input, out, test.output)
		}
	}
}

func TestCreate(t *testing.T) {
	root := filepath.Join(tempDir(t), "parent", "mybag")
	bag, err := Create(root, Options{})
	require.NoError(t, err)

	assert.Equal(t, "mybag", bag.Name())
	assert.DirExists(t, filepath.Join(root, "data"))
	assert.Equal(t,
		"Tag-File-Character-Encoding: UTF-8\nBagIt-Version: 0.97\n",
		readFile(t, filepath.Join(root, "bagit.txt")))
	assert.Equal(t, fixity.DefaultTypes(), bag.Types())
}

func TestCreateInvalidTypes(t *testing.T) {
	_, err := Create(filepath.Join(tempDir(t), "bag"), Options{Types: fixity.TypeSet{"crc32"}})
	assert.IsType(t, &fixity.InvalidTypeError{}, err)
}

func TestWriteInfo(t *testing.T) {
	src, total := sourceTree(t)
	bag, err := Create(filepath.Join(tempDir(t), "info-bag"), Options{})
	require.NoError(t, err)
	require.NoError(t, bag.AddDirToPayload(Copy, src))
	require.NoError(t, bag.WriteInfo())

	info, err := bag.ReadInfo()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"External-Identifier": "info-bag",
		"Payload-Oxum":        Size{Bytes: total, Files: 4}.Oxum(),
		"Bag-Size":            HumanSize(total),
	}, info)

	size, err := bag.InfoPayloadSize()
	require.NoError(t, err)
	assert.Equal(t, Size{Bytes: total, Files: 4}, size)
}

func TestWriteManifestModes(t *testing.T) {
	bag, err := Create(filepath.Join(tempDir(t), "bag"), Options{Types: fixity.TypeSet{fixity.SHA256}})
	require.NoError(t, err)
	ff := fixity.New("a.txt")
	ff.Checksums[fixity.SHA256] = sha256hex("a")
	m := fixity.Map{"a.txt": ff}
	path := bag.ManifestPath(Manifest, fixity.SHA256)

	paths, err := bag.WriteManifestChecksums(Manifest, m, Append)
	require.NoError(t, err)
	assert.Equal(t, map[fixity.TypeID]string{fixity.SHA256: path}, paths)
	assert.Equal(t, sha256hex("a")+" a.txt\n", readFile(t, path))

	_, err = bag.WriteManifestChecksums(Manifest, m, Append)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(t, path))

	_, err = bag.WriteManifestChecksums(Manifest, m, Overwrite)
	require.NoError(t, err)
	assert.Equal(t, 1, countLines(t, path))
}

func TestWriteManifestSkipsMissingTypes(t *testing.T) {
	bag, err := Create(filepath.Join(tempDir(t), "bag"), Options{Types: fixity.TypeSet{fixity.MD5, fixity.SHA256}})
	require.NoError(t, err)
	ff := fixity.New("only-sha256")
	ff.Checksums[fixity.SHA256] = sha256hex("x")
	_, err = bag.WriteManifestChecksums(Manifest, fixity.Map{ff.FileID: ff}, Overwrite)
	require.NoError(t, err)

	assert.Equal(t, 0, countLines(t, bag.ManifestPath(Manifest, fixity.MD5)))
	assert.Equal(t, 1, countLines(t, bag.ManifestPath(Manifest, fixity.SHA256)))
}

func TestWriteManifestSkipsNilEntries(t *testing.T) {
	bag, err := Create(filepath.Join(tempDir(t), "bag"), Options{Types: fixity.TypeSet{fixity.SHA256}})
	require.NoError(t, err)
	ff := fixity.New("a.txt")
	ff.Checksums[fixity.SHA256] = sha256hex("a")
	m := fixity.Map{"a.txt": ff, "missing.txt": nil}

	_, err = bag.WriteManifestChecksums(Manifest, m, Overwrite)
	require.NoError(t, err)
	assert.Equal(t, sha256hex("a")+" a.txt\n", readFile(t, bag.ManifestPath(Manifest, fixity.SHA256)))

	require.NoError(t, bag.AddFilesToPayload(Copy, tempDir(t), fixity.Map{"missing.txt": nil}))
	_, err = os.Stat(filepath.Join(bag.PayloadPath(), "missing.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestCopyFileModes(t *testing.T) {
	dir := tempDir(t)
	src := filepath.Join(dir, "src.txt")
	writeFile(t, src, "content")

	for _, mode := range []LinkMode{Copy, HardLink, SymLink} {
		target := filepath.Join(dir, mode.String())
		out, err := CopyFile(mode, src, target)
		require.NoError(t, err, mode.String())
		assert.Equal(t, target, out)
		assert.Equal(t, "content", readFile(t, target))

		info, err := os.Lstat(target)
		require.NoError(t, err)
		assert.Equal(t, mode == SymLink, info.Mode()&os.ModeSymlink != 0, mode.String())
	}

	_, err := CopyFile(LinkMode(7), src, filepath.Join(dir, "bad"))
	assert.Equal(t, ErrInvalidLinkMode, err)
	assert.Equal(t, "LinkMode(7)", LinkMode(7).String())
}

func TestParseLinkMode(t *testing.T) {
	for _, mode := range []LinkMode{Copy, HardLink, SymLink} {
		m, err := ParseLinkMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, m)
	}
	_, err := ParseLinkMode("hardlink")
	assert.Equal(t, ErrInvalidLinkMode, errors.Cause(err))
}

func TestCopyFollowsSymlinks(t *testing.T) {
	dir := tempDir(t)
	src := filepath.Join(dir, "src.txt")
	link := filepath.Join(dir, "link.txt")
	writeFile(t, src, "content")
	require.NoError(t, os.Symlink(src, link))

	target := filepath.Join(dir, "copy.txt")
	_, err := CopyFile(Copy, link, target)
	require.NoError(t, err)
	info, err := os.Lstat(target)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}

func TestCopyFileMissingSource(t *testing.T) {
	dir := tempDir(t)
	_, err := CopyFile(Copy, filepath.Join(dir, "nope"), filepath.Join(dir, "target"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}

func TestAddFilesToPayload(t *testing.T) {
	src, _ := sourceTree(t)
	c, err := fixity.NewComputer(fixity.SHA256)
	require.NoError(t, err)
	m, err := c.ComputeTree(src, []string{filepath.Join(src, "images", "page-1.jpg")})
	require.NoError(t, err)

	bag, err := Create(filepath.Join(tempDir(t), "bag"), Options{Types: fixity.TypeSet{fixity.SHA256}})
	require.NoError(t, err)
	require.NoError(t, bag.AddFilesToPayload(HardLink, src, m))

	assert.Equal(t, "not really a jpeg", readFile(t, filepath.Join(bag.PayloadPath(), "images", "page-1.jpg")))
	assert.Equal(t,
		sha256hex("not really a jpeg")+" images/page-1.jpg\n",
		readFile(t, bag.ManifestPath(Manifest, fixity.SHA256)))
}

func TestAddPayloadTarfile(t *testing.T) {
	dir := tempDir(t)
	objectDir := filepath.Join(dir, "objects", "obj1")
	writeFile(t, filepath.Join(objectDir, "v0001", "file.txt"), "version one")

	var commands []string
	root := filepath.Join(dir, "bag")
	tarpath := filepath.Join(root, "data", "obj1-v0001.tar")
	fake := command.Func(func(cmd string) (string, error) {
		commands = append(commands, cmd)
		return "", ioutil.WriteFile(tarpath, []byte("fake tar content"), 0644)
	})
	bag, err := Create(root, Options{Types: fixity.TypeSet{fixity.SHA256}, Executor: fake})
	require.NoError(t, err)

	tf, err := bag.AddPayloadTarfile("obj1-v0001.tar", filepath.Join(objectDir, "v0001"), filepath.Join(dir, "objects"))
	require.NoError(t, err)

	require.Len(t, commands, 1)
	assert.Equal(t,
		"tar --create --file="+tarpath+" --format=posix --dereference --directory='"+filepath.Join(dir, "objects")+"' obj1/v0001",
		commands[0])
	rel, err := tf.TarfileRelativePath()
	require.NoError(t, err)
	assert.Equal(t, "obj1-v0001.tar", rel)
	assert.Equal(t,
		sha256hex("fake tar content")+" obj1-v0001.tar\n",
		readFile(t, bag.ManifestPath(Manifest, fixity.SHA256)))
}

func TestAddPayloadTarfileFailure(t *testing.T) {
	fake := command.Func(func(cmd string) (string, error) {
		return "", &command.ExecutionError{Command: cmd, Stderr: "tar: no such file"}
	})
	bag, err := Create(filepath.Join(tempDir(t), "bag"), Options{Executor: fake})
	require.NoError(t, err)

	_, err = bag.AddPayloadTarfile("x.tar", "/does/not/exist", "/does/not")
	require.Error(t, err)
	assert.IsType(t, &command.ExecutionError{}, errors.Cause(err))
	_, err = os.Stat(bag.ManifestPath(Manifest, fixity.SHA256))
	assert.True(t, os.IsNotExist(err))
}

func TestSeal(t *testing.T) {
	src, _ := sourceTree(t)
	bag, err := Create(filepath.Join(tempDir(t), "bag"), Options{})
	require.NoError(t, err)
	require.NoError(t, bag.AddDirToPayload(Copy, src))
	require.NoError(t, bag.Seal())

	tags := readFile(t, bag.ManifestPath(TagManifest, fixity.SHA256))
	for _, name := range []string{"bagit.txt", "bag-info.txt", "manifest-sha1.txt", "manifest-sha256.txt"} {
		assert.Contains(t, tags, " "+name+"\n")
	}
	assert.NotContains(t, tags, "tagmanifest")
	assert.NotContains(t, tags, " data")

	// sealing again replaces the tagmanifest
	require.NoError(t, bag.Seal())
	assert.Equal(t, 4, countLines(t, bag.ManifestPath(TagManifest, fixity.SHA256)))
	assert.False(t, strings.Contains(readFile(t, bag.ManifestPath(TagManifest, fixity.SHA1)), "tagmanifest"))
}
