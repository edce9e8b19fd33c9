package server

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// A TokenDecoder decodes the API keys passed to the server. A key that is not
// valid gives the user "" with RoleUnknown. An error is returned only if the
// lookup itself failed.
type TokenDecoder interface {
	TokenDecode(token string) (user string, role Role, err error)
}

// Role is the level of access a user has.
type Role int

const (
	RoleUnknown Role = iota
	RoleRead         // may view fixity records
	RoleWrite        // may also schedule and cancel checks
	RoleAdmin
)

func atoRole(s string) Role {
	switch strings.ToLower(s) {
	case "read":
		return RoleRead
	case "write":
		return RoleWrite
	case "admin":
		return RoleAdmin
	default:
		return RoleUnknown
	}
}

// NewNobodyDecoder returns a TokenDecoder that gives every token, even the
// empty one, the user "nobody" with the Admin role.
func NewNobodyDecoder() TokenDecoder {
	return nobodyDecoder{}
}

type nobodyDecoder struct{}

func (nobodyDecoder) TokenDecode(token string) (string, Role, error) {
	return "nobody", RoleAdmin, nil
}

// NewListDecoder reads a list of users from r. Each line has the form
//
//     <user name>  <role>  <token>
//
// separated by spaces or tabs. The role is one of "Read", "Write", or
// "Admin" (case insensitive). Blank lines and lines beginning with '#' are
// skipped. Malformed lines are logged and skipped.
func NewListDecoder(r io.Reader) (TokenDecoder, error) {
	users := make(listDecoder)
	scanner := bufio.NewScanner(r)
	var lineno int
	for scanner.Scan() {
		lineno++
		pieces := strings.Fields(scanner.Text())
		if len(pieces) == 0 || strings.HasPrefix(pieces[0], "#") {
			continue
		}
		if len(pieces) != 3 {
			log.WithField("line", lineno).Warnln("token list: expected 3 columns")
			continue
		}
		users[pieces[2]] = userEntry{
			user: pieces[0],
			role: atoRole(pieces[1]),
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "token list")
	}
	return users, nil
}

// NewListDecoderFile reads the users for a ListDecoder from the given file.
func NewListDecoderFile(fname string) (TokenDecoder, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewListDecoder(f)
}

// NewListDecoderString is a convenience function that passes the given string
// into NewListDecoder.
func NewListDecoderString(data string) (TokenDecoder, error) {
	return NewListDecoder(strings.NewReader(data))
}

type userEntry struct {
	user string
	role Role
}

// listDecoder maps tokens to users.
type listDecoder map[string]userEntry

func (ld listDecoder) TokenDecode(token string) (string, Role, error) {
	if token == "" {
		return "", RoleUnknown, nil
	}
	u, ok := ld[token]
	if !ok {
		return "", RoleUnknown, nil
	}
	return u.user, u.role, nil
}
