package fixity

import (
	"fmt"
	"regexp"

	"github.com/ndlib/replication/command"
)

// OpensslDigestCommand returns the shell command which has openssl compute
// the given digest of a file.
func OpensslDigestCommand(t TypeID, path string) string {
	return fmt.Sprintf("openssl dgst -%s %s", t, path)
}

var alnumRun = regexp.MustCompile(`[A-Za-z0-9]+`)

// OpensslDigest computes a digest of the file at path by running openssl.
// It gives an answer independent of this package, which is useful to
// cross-check a manifest. The digest is the last run of letters and digits
// in the command's output.
func OpensslDigest(x command.Executor, t TypeID, path string) (string, error) {
	if _, err := Validate(t); err != nil {
		return "", err
	}
	out, err := x.Execute(OpensslDigestCommand(t, path))
	if err != nil {
		return "", err
	}
	runs := alnumRun.FindAllString(out, -1)
	if len(runs) == 0 {
		return "", fmt.Errorf("no digest in openssl output %q", out)
	}
	return runs[len(runs)-1], nil
}
