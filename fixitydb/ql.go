package fixitydb

import (
	"database/sql"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/migration"
	_ "github.com/cznic/ql/driver"
	log "github.com/sirupsen/logrus"
)

// This file implements the fixity tables using the QL embedded database.

type qlDB struct {
	db *sql.DB
}

var _ DB = &qlDB{}

// List of migrations to perform. Add new ones to the end.
// DO NOT change the order of items already in this list.
var qlMigrations = []migration.Migrator{
	qlschema1,
}

var qlVersioning = dbVersion{
	GetSQL:    `SELECT max(version) FROM migration_version`,
	SetSQL:    `INSERT INTO migration_version VALUES (?1, now())`,
	CreateSQL: `CREATE TABLE IF NOT EXISTS migration_version (version int, applied time)`,
}

// counter used to give every in memory database its own name
var memoryDBs int64

// NewQl opens, creating if needed, a QL database in the given file. The
// filename "memory" means to keep everything in memory. Each in memory
// database is separate from every other one.
func NewQl(filename string) (DB, error) {
	driver, dsn := "ql", filename
	if filename == "memory" {
		driver = "ql-mem"
		dsn = "mem" + strconv.FormatInt(atomic.AddInt64(&memoryDBs, 1), 10) + ".db"
	}
	db, err := migration.OpenWith(
		driver,
		dsn,
		qlMigrations,
		qlVersioning.Get,
		qlVersioning.Set)
	if err != nil {
		log.Printf("Open QL: %s", err.Error())
		return nil, err
	}
	return &qlDB{db: db}, nil
}

func (q *qlDB) Close() error {
	return q.db.Close()
}

func (q *qlDB) NextFixity(cutoff time.Time) int64 {
	const query = `
		SELECT id(), scheduled_time
		FROM fixity
		WHERE status == "scheduled" AND scheduled_time <= ?1
		ORDER BY scheduled_time
		LIMIT 1;`

	var id int64
	var when time.Time
	err := q.db.QueryRow(query, cutoff).Scan(&id, &when)
	if err == sql.ErrNoRows {
		// no next record
		return 0
	} else if err != nil {
		log.Println("nextfixity QL", err.Error())
		return 0
	}
	return id
}

func (q *qlDB) GetFixity(id int64) *Fixity {
	const query = `
		SELECT id(), bag, scheduled_time, status, notes
		FROM fixity
		WHERE id() == ?1
		LIMIT 1`

	var record Fixity
	err := q.db.QueryRow(query, id).Scan(&record.ID, &record.Bag, &record.ScheduledTime, &record.Status, &record.Notes)
	if err == sql.ErrNoRows {
		return nil
	} else if err != nil {
		log.Println("GetFixity QL", err.Error())
		return nil
	}
	return &record
}

func (q *qlDB) SearchFixity(start, end time.Time, bag string, status string) []Fixity {
	where, args := searchQuery(start, end, bag, status, "==", func(n int) string {
		return "?" + strconv.Itoa(n)
	})
	query := `SELECT id(), bag, scheduled_time, status, notes FROM fixity` +
		where +
		` ORDER BY scheduled_time DESC LIMIT ` + strconv.Itoa(SearchLimit)

	rows, err := q.db.Query(query, args...)
	if err != nil {
		log.Println("SearchFixity QL", err.Error())
		return nil
	}
	defer rows.Close()
	var result []Fixity
	for rows.Next() {
		var record Fixity
		err = rows.Scan(&record.ID, &record.Bag, &record.ScheduledTime, &record.Status, &record.Notes)
		if err != nil {
			log.Println("SearchFixity QL", err.Error())
			continue
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		log.Println("SearchFixity QL", err.Error())
	}
	return result
}

func (q *qlDB) UpdateFixity(record Fixity) (int64, error) {
	if record.Status == "" {
		record.Status = StatusScheduled
	}
	if _, err := ValidateStatus(record.Status); err != nil {
		return 0, err
	}
	if record.ID == 0 {
		const query = `INSERT INTO fixity VALUES (?1, ?2, ?3, ?4)`

		result, err := performExec(q.db, query, record.Bag, record.ScheduledTime, record.Status, record.Notes)
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	}

	const query = `
		UPDATE fixity
		SET bag = ?2, scheduled_time = ?3, status = ?4, notes = ?5
		WHERE id() == ?1 AND status == "scheduled"`

	_, err := performExec(q.db, query, record.ID, record.Bag, record.ScheduledTime, record.Status, record.Notes)
	return record.ID, err
}

func (q *qlDB) DeleteFixity(id int64) error {
	const query = `DELETE FROM fixity WHERE id() == ?1 AND status == "scheduled"`

	_, err := performExec(q.db, query, id)
	return err
}

func (q *qlDB) LookupCheck(bag string) (time.Time, error) {
	const query = `
		SELECT scheduled_time
		FROM fixity
		WHERE bag == ?1 AND status == "scheduled"
		ORDER BY scheduled_time ASC
		LIMIT 1`

	var when time.Time
	err := q.db.QueryRow(query, bag).Scan(&when)
	if err == sql.ErrNoRows {
		err = nil
	}
	return when, err
}

func qlschema1(tx migration.LimitedTx) error {
	var s = []string{
		`CREATE TABLE IF NOT EXISTS fixity (
			bag string,
			scheduled_time time,
			status string,
			notes string
		)`,
		`CREATE INDEX IF NOT EXISTS fixitybag ON fixity (bag)`,
		`CREATE INDEX IF NOT EXISTS fixitytime ON fixity (scheduled_time)`,
		`CREATE INDEX IF NOT EXISTS fixitystatus ON fixity (status)`,
	}
	return execlist(tx, s)
}

// performExec runs a single statement inside a transaction, since QL
// requires every change to be made in one.
func performExec(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	var result sql.Result
	result, err = tx.Exec(query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	err = tx.Commit()
	return result, err
}
