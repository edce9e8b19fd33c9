package bagit

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ndlib/replication/fixity"
)

// ReadTagProperties parses a tag file of "Key: Value" lines. Each line is
// split on its first colon and both sides are trimmed. Lines without a colon
// are skipped.
func (b *Bag) ReadTagProperties(name string) (map[string]string, error) {
	f, err := os.Open(b.TagPath(name))
	if err != nil {
		return nil, errors.Wrap(err, "read tag file")
	}
	defer f.Close()
	result := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), ":", 2)
		if len(parts) != 2 {
			continue
		}
		result[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return result, errors.Wrap(scanner.Err(), "read tag file")
}

// ReadBagitTxt returns the properties in bagit.txt.
func (b *Bag) ReadBagitTxt() (map[string]string, error) {
	return b.ReadTagProperties("bagit.txt")
}

// ReadInfo returns the properties in bag-info.txt.
func (b *Bag) ReadInfo() (map[string]string, error) {
	return b.ReadTagProperties("bag-info.txt")
}

// InfoPayloadSize returns the payload size recorded in the Payload-Oxum of
// bag-info.txt.
func (b *Bag) InfoPayloadSize() (Size, error) {
	info, err := b.ReadInfo()
	if err != nil {
		return Size{}, err
	}
	return ParseOxum(info["Payload-Oxum"])
}

// ParseOxum parses a Payload-Oxum value of the form "<bytes>.<files>".
func ParseOxum(s string) (Size, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return Size{}, fmt.Errorf("Bad Payload-Oxum %q", s)
	}
	nbytes, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Size{}, errors.Wrapf(err, "Bad Payload-Oxum %q", s)
	}
	nfiles, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Size{}, errors.Wrapf(err, "Bad Payload-Oxum %q", s)
	}
	return Size{Bytes: nbytes, Files: nfiles}, nil
}

// the separator between a digest and the file id. A "*" marks binary mode in
// md5sum style output.
var manifestSep = regexp.MustCompile(`[\s*]+`)

// ReadManifestFiles reads every manifest of the given kind present in the
// bag, for any supported algorithm, and merges them into one record per
// file. Any algorithm found is added to the bag's types.
func (b *Bag) ReadManifestFiles(kind string) (fixity.Map, error) {
	result := make(fixity.Map)
	var found fixity.TypeSet
	for _, t := range fixity.ValidIDs() {
		path := b.ManifestPath(kind, t)
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return nil, errors.Wrap(err, "read manifest")
		}
		found = found.Add(t)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			parts := manifestSep.Split(line, 2)
			if len(parts) != 2 {
				continue
			}
			id := parts[1]
			ff := result[id]
			if ff == nil {
				ff = fixity.New(id)
				result[id] = ff
			}
			ff.Checksums[t] = strings.ToLower(parts[0])
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, errors.Wrap(err, "read manifest")
		}
	}
	b.setTypes(b.types.Union(found))
	return result, nil
}
