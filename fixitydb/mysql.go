package fixitydb

import (
	"database/sql"
	"strconv"
	"time"

	// no _ in import mysql since we need mysql.NullTime
	"github.com/BurntSushi/migration"
	"github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"
)

// This file implements the fixity tables using MySQL as a storage medium.

type mysqlDB struct {
	db *sql.DB
}

var _ DB = &mysqlDB{}

// List of migrations to perform. Add new ones to the end.
// DO NOT change the order of items already in this list.
var mysqlMigrations = []migration.Migrator{
	mysqlschema1,
	mysqlschema2,
}

// Adapt the schema versioning for MySQL

var mysqlVersioning = dbVersion{
	GetSQL:    `SELECT max(version) FROM migration_version`,
	SetSQL:    `INSERT INTO migration_version (version, applied) VALUES (?, now())`,
	CreateSQL: `CREATE TABLE migration_version (version INTEGER, applied datetime)`,
}

// NewMysql connects to a MySQL database, bringing its schema up to date.
// dial is a go-sql-driver DSN, e.g. "user:pass@tcp(host:3306)/fixity".
func NewMysql(dial string) (DB, error) {
	db, err := migration.OpenWith(
		"mysql",
		dial,
		mysqlMigrations,
		mysqlVersioning.Get,
		mysqlVersioning.Set)
	if err != nil {
		log.Printf("Open Mysql: %s", err.Error())
		return nil, err
	}
	return &mysqlDB{db: db}, nil
}

func (ms *mysqlDB) Close() error {
	return ms.db.Close()
}

func (ms *mysqlDB) NextFixity(cutoff time.Time) int64 {
	const query = `
		SELECT id
		FROM fixity
		WHERE status = "scheduled" AND scheduled_time <= ?
		ORDER BY scheduled_time
		LIMIT 1`

	var id int64
	err := ms.db.QueryRow(query, cutoff).Scan(&id)
	if err == sql.ErrNoRows {
		// no next record
		return 0
	} else if err != nil {
		log.Println("nextfixity", err.Error())
		return 0
	}
	return id
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMysqlFixity(s scanner) (Fixity, error) {
	var record Fixity
	var when mysql.NullTime
	var notes sql.NullString
	err := s.Scan(&record.ID, &record.Bag, &when, &record.Status, &notes)
	if when.Valid {
		record.ScheduledTime = when.Time
	}
	record.Notes = notes.String
	return record, err
}

func (ms *mysqlDB) GetFixity(id int64) *Fixity {
	const query = `
		SELECT id, bag, scheduled_time, status, notes
		FROM fixity
		WHERE id = ?
		LIMIT 1`

	record, err := scanMysqlFixity(ms.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil
	} else if err != nil {
		log.Println("GetFixity", err.Error())
		return nil
	}
	return &record
}

func (ms *mysqlDB) SearchFixity(start, end time.Time, bag string, status string) []Fixity {
	where, args := searchQuery(start, end, bag, status, "=", func(int) string { return "?" })
	query := `SELECT id, bag, scheduled_time, status, notes FROM fixity` +
		where +
		` ORDER BY scheduled_time DESC LIMIT ` + strconv.Itoa(SearchLimit)

	rows, err := ms.db.Query(query, args...)
	if err != nil {
		log.Println("SearchFixity", err.Error())
		return nil
	}
	defer rows.Close()
	var result []Fixity
	for rows.Next() {
		record, err := scanMysqlFixity(rows)
		if err != nil {
			log.Println("SearchFixity", err.Error())
			continue
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		log.Println("SearchFixity", err.Error())
	}
	return result
}

func (ms *mysqlDB) UpdateFixity(record Fixity) (int64, error) {
	if record.Status == "" {
		record.Status = StatusScheduled
	}
	if _, err := ValidateStatus(record.Status); err != nil {
		return 0, err
	}
	if record.ID == 0 {
		const query = `INSERT INTO fixity (bag, scheduled_time, status, notes) VALUES (?,?,?,?)`

		result, err := ms.db.Exec(query, record.Bag, record.ScheduledTime, record.Status, record.Notes)
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	}

	const query = `
		UPDATE fixity
		SET bag = ?, scheduled_time = ?, status = ?, notes = ?
		WHERE id = ? AND status = "scheduled"`

	_, err := ms.db.Exec(query, record.Bag, record.ScheduledTime, record.Status, record.Notes, record.ID)
	return record.ID, err
}

func (ms *mysqlDB) DeleteFixity(id int64) error {
	const query = `DELETE FROM fixity WHERE id = ? AND status = "scheduled"`

	_, err := ms.db.Exec(query, id)
	return err
}

func (ms *mysqlDB) LookupCheck(bag string) (time.Time, error) {
	const query = `
		SELECT scheduled_time
		FROM fixity
		WHERE bag = ? AND status = "scheduled"
		ORDER BY scheduled_time
		LIMIT 1`

	var when mysql.NullTime
	err := ms.db.QueryRow(query, bag).Scan(&when)
	if err == sql.ErrNoRows {
		err = nil
	}
	if when.Valid {
		return when.Time, err
	}
	return time.Time{}, err
}

// database migrations. each one is a go function. Add them to the
// list mysqlMigrations at top of this file for them to be run.

func mysqlschema1(tx migration.LimitedTx) error {
	var s = []string{
		`CREATE TABLE IF NOT EXISTS fixity (
		id int PRIMARY KEY AUTO_INCREMENT,
		bag varchar(255),
		scheduled_time datetime,
		status varchar(32),
		notes text)`,
	}
	return execlist(tx, s)
}

func mysqlschema2(tx migration.LimitedTx) error {
	var s = []string{
		`CREATE INDEX fixity_bag ON fixity (bag)`,
		`CREATE INDEX fixity_status_time ON fixity (status, scheduled_time)`,
	}
	return execlist(tx, s)
}
