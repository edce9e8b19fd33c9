package fixity

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndlib/replication/command"
)

var helloDigests = map[TypeID]string{
	MD5:    "5d41402abc4b2a76b9719d911017c592",
	SHA1:   "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d",
	SHA256: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
	SHA384: "59e1748777448c69de6b800d7a33bbfb9ff1b463e44354c3553bcdb9c666fa90125a3c79f90397bdf5f6a13de828684f",
	SHA512: "9b71d224bd62f3785d96d46ad3ea3d73319bfbc2890caadae2dff72519673ca72323c3d99ba5c11d7c7acc6e14b8c5da0c4663475c2e5c3adef46f73bcdec043",
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "fixity")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
}

func TestComputeFileHello(t *testing.T) {
	dir := tempDir(t)
	path := filepath.Join(dir, "sub", "hello.txt")
	writeFile(t, path, "hello")

	c, err := NewComputer(ValidIDs()...)
	require.NoError(t, err)
	f, err := c.ComputeFile(path, dir)
	require.NoError(t, err)

	assert.Equal(t, "sub/hello.txt", f.FileID)
	assert.Equal(t, int64(5), f.Bytes)
	assert.Equal(t, helloDigests, f.Checksums)
}

func TestComputeFileManyBlocks(t *testing.T) {
	dir := tempDir(t)
	path := filepath.Join(dir, "big")
	content := strings.Repeat("0123456789abcdef", 3*BlockSize/16+7)
	writeFile(t, path, content)

	c, err := NewComputer(SHA256)
	require.NoError(t, err)
	var reads int
	c.Wrap = func(r io.Reader) io.Reader {
		return readCounter{r, &reads}
	}
	f, err := c.ComputeFile(path, dir)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), f.Bytes)
	assert.Equal(t, TypeSet{SHA256}, f.Types())
	assert.True(t, reads >= 4, "expected the file to be read in blocks, got %d reads", reads)
}

type readCounter struct {
	r io.Reader
	n *int
}

func (rc readCounter) Read(p []byte) (int, error) {
	*rc.n++
	if len(p) != BlockSize {
		return 0, io.ErrShortBuffer
	}
	return rc.r.Read(p)
}

func TestComputeFileMissing(t *testing.T) {
	c, err := NewComputer()
	require.NoError(t, err)
	_, err = c.ComputeFile("/does/not/exist", "/does")
	require.Error(t, err)
}

func TestNewComputerInvalid(t *testing.T) {
	_, err := NewComputer(SHA1, "dummy")
	assert.IsType(t, &InvalidTypeError{}, err)

	c, err := NewComputer()
	require.NoError(t, err)
	assert.Equal(t, DefaultTypes(), c.Types)
	assert.Equal(t, TypeSet{MD5}, c.WithTypes(TypeSet{MD5}).Types)
	assert.Equal(t, DefaultTypes(), c.Types)
}

func TestComputeTree(t *testing.T) {
	dir := tempDir(t)
	writeFile(t, filepath.Join(dir, "page-1.txt"), "hello")
	writeFile(t, filepath.Join(dir, "a", "b", "page-2.txt"), "hello world")
	writeFile(t, filepath.Join(dir, "a", "page-3.txt"), "")
	require.NoError(t, os.Symlink(filepath.Join(dir, "page-1.txt"), filepath.Join(dir, "link.txt")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "a"), filepath.Join(dir, "linkdir")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing"), filepath.Join(dir, "dangling")))

	c, err := NewComputer(MD5, SHA256)
	require.NoError(t, err)
	c.Workers = 2
	m, err := c.ComputeTree(dir, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a/b/page-2.txt", "a/page-3.txt", "link.txt", "page-1.txt"}, m.SortedIDs())
	assert.Equal(t, m["page-1.txt"].Checksums, m["link.txt"].Checksums)
	assert.Equal(t, helloDigests[MD5], m["page-1.txt"].Checksums[MD5])
	assert.Equal(t, helloDigests[SHA256], m["page-1.txt"].Checksums[SHA256])
	assert.Equal(t, int64(11), m["a/b/page-2.txt"].Bytes)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", m["a/page-3.txt"].Checksums[MD5])
}

func TestComputeTreeExplicitList(t *testing.T) {
	dir := tempDir(t)
	writeFile(t, filepath.Join(dir, "page-1.txt"), "hello")
	writeFile(t, filepath.Join(dir, "a", "page-2.txt"), "hello world")
	require.NoError(t, os.Symlink(filepath.Join(dir, "page-1.txt"), filepath.Join(dir, "link.txt")))

	c, err := NewComputer(SHA1)
	require.NoError(t, err)
	m, err := c.ComputeTree(dir, []string{
		filepath.Join(dir, "a"), // directories are ignored
		filepath.Join(dir, "link.txt"),
		filepath.Join(dir, "a", "page-2.txt"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/page-2.txt", "link.txt"}, m.SortedIDs())
	// the link is dereferenced when read
	assert.Equal(t, helloDigests[SHA1], m["link.txt"].Checksums[SHA1])
}

func TestComputeTreeEmptyList(t *testing.T) {
	c, err := NewComputer()
	require.NoError(t, err)
	m, err := c.ComputeTree(tempDir(t), []string{})
	require.NoError(t, err)
	assert.Len(t, m, 0)
}

func TestFromValues(t *testing.T) {
	values := []string{
		"fe6e3ffa1b02ced189db640f68da0cc2",
		"43ced73681687bc8e6f483618f0dcff7665e0ba7",
		"42c0cd1fe06615d8fdb8c2e3400d6fe38461310b4ecc252e1774e0c9e3981afa",
	}
	f, err := FromValues("dummy", values)
	require.NoError(t, err)
	assert.Equal(t, "dummy", f.FileID)
	assert.Equal(t, map[TypeID]string{
		MD5:    values[0],
		SHA1:   values[1],
		SHA256: values[2],
	}, f.Checksums)
}

func TestFromValuesUnknownLength(t *testing.T) {
	f, err := FromValues("dummy", []string{"abc", helloDigests[MD5]})
	require.Error(t, err)
	ule, ok := err.(*UnknownLengthError)
	require.True(t, ok)
	assert.Equal(t, []string{"abc"}, ule.Values)
	// the recognized value is still kept
	assert.Equal(t, map[TypeID]string{MD5: helloDigests[MD5]}, f.Checksums)
}

func TestOpensslDigestCommand(t *testing.T) {
	assert.Equal(t, "openssl dgst -md5 /tmp/x.jpg", OpensslDigestCommand(MD5, "/tmp/x.jpg"))
	assert.Equal(t, "openssl dgst -sha256 /tmp/x.jpg", OpensslDigestCommand(SHA256, "/tmp/x.jpg"))
}

func TestOpensslDigestFake(t *testing.T) {
	var lines []string
	x := command.Func(func(line string) (string, error) {
		lines = append(lines, line)
		return "SHA256(/tmp/x.jpg)= " + helloDigests[SHA256] + "\n", nil
	})
	got, err := OpensslDigest(x, SHA256, "/tmp/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, helloDigests[SHA256], got)
	assert.Equal(t, []string{"openssl dgst -sha256 /tmp/x.jpg"}, lines)

	_, err = OpensslDigest(x, "dummy", "/tmp/x.jpg")
	assert.IsType(t, &InvalidTypeError{}, err)
}

func TestOpensslDigestAgrees(t *testing.T) {
	if _, err := os.Stat("/usr/bin/openssl"); err != nil {
		t.Skip("openssl not installed")
	}
	dir := tempDir(t)
	path := filepath.Join(dir, "hello.txt")
	writeFile(t, path, "hello")
	for _, id := range []TypeID{MD5, SHA1, SHA256} {
		got, err := OpensslDigest(command.Shell{}, id, path)
		require.NoError(t, err)
		assert.Equal(t, helloDigests[id], got)
	}
}
