// Package fixitydb records when each bag is due for a fixity check and the
// result of every check made.
//
// A record starts with the status "scheduled" and a scheduled time. When the
// check is made the record is updated in place with the outcome: "ok",
// "mismatch" if the bag failed verification, or "error" if the bag could not
// be checked at all. Only scheduled records may be changed or deleted, so the
// table is also the audit history of every bag.
//
// There are two backends: an embedded QL database, intended for development
// and single machine installs, and MySQL.
package fixitydb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/migration"
	log "github.com/sirupsen/logrus"
)

// The possible values of Fixity.Status.
const (
	StatusScheduled = "scheduled"
	StatusOK        = "ok"
	StatusMismatch  = "mismatch"
	StatusError     = "error"
)

// SearchLimit is the most records SearchFixity will return.
const SearchLimit = 1000

// Fixity is one scheduled or completed check of a bag.
type Fixity struct {
	ID            int64
	Bag           string // name of the bag directory
	ScheduledTime time.Time
	Status        string
	Notes         string
}

// DB is the interface to the fixity tables.
type DB interface {
	// NextFixity returns the id of the earliest scheduled check at or
	// before cutoff. It returns 0 if there is none.
	NextFixity(cutoff time.Time) int64

	// GetFixity returns the record with the given id, or nil.
	GetFixity(id int64) *Fixity

	// SearchFixity returns the records matching the given criteria, newest
	// first. Zero times and empty strings match everything.
	SearchFixity(start, end time.Time, bag string, status string) []Fixity

	// UpdateFixity adds record if its ID is 0 and returns the new id.
	// Otherwise it replaces the record having that ID, provided the stored
	// record is still scheduled. Completed records are left unchanged.
	UpdateFixity(record Fixity) (int64, error)

	// DeleteFixity removes a record, provided it is still scheduled.
	DeleteFixity(id int64) error

	// LookupCheck returns the time of the earliest scheduled check for a
	// bag, or the zero time if there is none.
	LookupCheck(bag string) (time.Time, error)

	Close() error
}

// ValidateStatus returns s if it is one of the record statuses.
func ValidateStatus(s string) (string, error) {
	switch s {
	case StatusScheduled, StatusOK, StatusMismatch, StatusError:
		return s, nil
	}
	return "", fmt.Errorf("invalid fixity status %q", s)
}

// ParseTime parses a time given as either a date (2006-01-02) or an
// RFC3339 timestamp. The empty string and "*" give the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" || s == "*" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// searchQuery builds the WHERE clause for SearchFixity. placeholder returns
// the parameter marker for the n-th argument, starting at 1, and eq is the
// equality operator of the SQL dialect.
func searchQuery(start, end time.Time, bag, status string, eq string, placeholder func(int) string) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, placeholder(len(args))))
	}
	if !start.IsZero() {
		add("scheduled_time >= %s", start)
	}
	if !end.IsZero() {
		add("scheduled_time <= %s", end)
	}
	if bag != "" {
		add("bag "+eq+" %s", bag)
	}
	if status != "" {
		add("status "+eq+" %s", status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// we need to adapt the migration version functions to work with MySQL and QL
// This code is slightly modified from github.com/BurntSushi/migration

type dbVersion struct {
	// SQL to get the version of this db, returns one row and one column
	GetSQL string
	// SQL to insert a new version of this db. takes one parameter, the new
	// version
	SetSQL string
	// the SQL to create the version table for this db
	CreateSQL string
}

func (d dbVersion) Get(tx migration.LimitedTx) (int, error) {
	v, err := d.get(tx)
	if err != nil {
		// we assume error means there is no migration table
		log.Debugln("migration version:", err)
		return 0, nil
	}
	return v, nil
}

func (d dbVersion) Set(tx migration.LimitedTx, version int) error {
	if err := d.set(tx, version); err != nil {
		if err := d.createTable(tx); err != nil {
			return err
		}
		return d.set(tx, version)
	}
	return nil
}

func (d dbVersion) get(tx migration.LimitedTx) (int, error) {
	var version sql.NullInt64
	r := tx.QueryRow(d.GetSQL)
	if err := r.Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

func (d dbVersion) set(tx migration.LimitedTx, version int) error {
	_, err := tx.Exec(d.SetSQL, version)
	return err
}

func (d dbVersion) createTable(tx migration.LimitedTx) error {
	_, err := tx.Exec(d.CreateSQL)
	if err == nil {
		err = d.set(tx, 0)
	}
	return err
}

// execlist exec's each item in the list, return if there is an error.
// Used to work around mysql driver not handling compound exec statements.
func execlist(tx migration.LimitedTx, stms []string) error {
	var err error
	for _, s := range stms {
		_, err = tx.Exec(s)
		if err != nil {
			break
		}
	}
	return err
}
