// Package audit periodically re-verifies the bags in a replica cache.
//
// Checks are scheduled in a fixitydb.DB. A background goroutine takes the
// earliest check that is due, verifies the bag, records the outcome, and then
// schedules the next check of that bag Interval later. Reading is throttled
// so checks do not starve other uses of the disks.
package audit

import (
	"expvar"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/replication/bagit"
	"github.com/ndlib/replication/fixity"
	"github.com/ndlib/replication/fixitydb"
	"github.com/ndlib/replication/replica"
	"github.com/ndlib/replication/util"
)

var (
	// DefaultInterval is the time between checks of the same bag.
	DefaultInterval = 180 * 24 * time.Hour

	// IdleWait is how long the auditor sleeps when no check is due.
	IdleWait = time.Hour

	xCounts = expvar.NewMap("audit.checks")
)

// Auditor runs fixity checks of the bags in a replica cache. Set the fields
// before calling Start and do not change them afterwards.
type Auditor struct {
	DB    fixitydb.DB
	Cache replica.Cache

	// Rate limits reading to this many MB per hour. The background process
	// is not started if it is 0.
	Rate int64

	// Interval is the time from one check of a bag to the next. Defaults
	// to DefaultInterval.
	Interval time.Duration

	// Types are the extra algorithms computed besides those found in the
	// bag's manifests.
	Types   fixity.TypeSet
	Workers int

	Clock clock.Clock // defaults to the wall clock

	m       sync.Mutex // protects below
	stop    chan struct{}
	rate    *util.RateCounter
	running sync.WaitGroup
}

func (a *Auditor) clock() clock.Clock {
	if a.Clock == nil {
		return clock.New()
	}
	return a.Clock
}

func (a *Auditor) interval() time.Duration {
	if a.Interval <= 0 {
		return DefaultInterval
	}
	return a.Interval
}

// Start begins checking bags in the background. It does nothing if Rate is
// 0 or the auditor is already running.
func (a *Auditor) Start() {
	a.m.Lock()
	defer a.m.Unlock()
	if a.Rate <= 0 || a.stop != nil {
		return
	}
	bytesPerSecond := float64(a.Rate) * 1000000 / 3600
	log.WithField("rate", a.Rate).Infoln("Starting fixity auditor (MB/hour)")
	a.stop = make(chan struct{})
	a.rate = util.NewRateCounterClock(bytesPerSecond, a.clock())
	a.running.Add(1)
	go a.loop(a.stop)
}

// Stop halts the background process and waits for it to exit. A check in
// progress is abandoned and stays scheduled.
func (a *Auditor) Stop() {
	a.m.Lock()
	if a.stop == nil {
		a.m.Unlock()
		return
	}
	close(a.stop)
	a.rate.Stop()
	a.m.Unlock()
	a.running.Wait()
	a.m.Lock()
	a.stop = nil
	a.rate = nil
	a.m.Unlock()
}

func (a *Auditor) loop(stop <-chan struct{}) {
	defer a.running.Done()
	clk := a.clock()
	for {
		select {
		case <-stop:
			return
		default:
		}
		id := a.DB.NextFixity(clk.Now())
		if id == 0 {
			select {
			case <-clk.After(IdleWait):
			case <-stop:
				return
			}
			continue
		}
		err := a.Check(id)
		if err != nil && errors.Cause(err) != util.ErrStopped {
			log.WithField("id", id).Errorln("fixity check:", err)
			// do not spin on a record we cannot update
			select {
			case <-clk.After(IdleWait):
			case <-stop:
				return
			}
		}
	}
}

// Check runs the scheduled check having the given id, records its outcome,
// and schedules the next check of the bag. If the auditor is stopped while
// reading, the check is left scheduled and util.ErrStopped is returned.
func (a *Auditor) Check(id int64) error {
	record := a.DB.GetFixity(id)
	if record == nil {
		return errors.Errorf("no fixity record %d", id)
	}
	logger := log.WithFields(log.Fields{"bag": record.Bag, "id": id})
	logger.Infoln("Begin fixity check")
	started := a.clock().Now()

	err := a.verify(record.Bag)
	if errors.Cause(err) == util.ErrStopped {
		logger.Infoln("Fixity check interrupted")
		return err
	}
	record.Status = fixitydb.StatusOK
	record.Notes = ""
	switch {
	case err == nil:
	case bagit.IsVerificationFailure(err):
		record.Status = fixitydb.StatusMismatch
		record.Notes = err.Error()
	default:
		record.Status = fixitydb.StatusError
		record.Notes = err.Error()
		raven.CaptureError(err, map[string]string{"bag": record.Bag})
	}
	xCounts.Add(record.Status, 1)
	logger.WithFields(log.Fields{
		"status":  record.Status,
		"elapsed": a.clock().Now().Sub(started),
	}).Infoln("End fixity check")

	_, err = a.DB.UpdateFixity(*record)
	if err != nil {
		return err
	}
	return a.scheduleNext(record.Bag)
}

func (a *Auditor) verify(name string) error {
	var wrap func(io.Reader) io.Reader
	a.m.Lock()
	if a.rate != nil {
		wrap = a.rate.Wrap
	}
	a.m.Unlock()
	bag, err := bagit.Open(a.bagPath(name), bagit.Options{
		Types:   a.Types,
		Workers: a.Workers,
		Wrap:    wrap,
	})
	if err != nil {
		return err
	}
	return bag.Verify()
}

// scheduleNext adds a check Interval from now, unless one is already
// scheduled.
func (a *Auditor) scheduleNext(name string) error {
	when, err := a.DB.LookupCheck(name)
	if err != nil || !when.IsZero() {
		return err
	}
	_, err = a.DB.UpdateFixity(fixitydb.Fixity{
		Bag:           name,
		ScheduledTime: a.clock().Now().Add(a.interval()),
		Status:        fixitydb.StatusScheduled,
	})
	return err
}

func (a *Auditor) bagPath(name string) string {
	return filepath.Join(a.Cache.Root, filepath.FromSlash(name))
}

// Schedule adds a check of the named bag, due now. The name is the path of
// the bag relative to the cache root, e.g. "sdr/jq937jp0017-v0002". An error
// wrapping bagit.ErrNotABag is returned if there is no such bag.
func (a *Auditor) Schedule(name string) (int64, error) {
	_, err := bagit.Open(a.bagPath(name), bagit.Options{})
	if err != nil {
		return 0, err
	}
	return a.DB.UpdateFixity(fixitydb.Fixity{
		Bag:           name,
		ScheduledTime: a.clock().Now(),
		Status:        fixitydb.StatusScheduled,
	})
}

// Scan schedules an immediate check of every bag in the cache that has no
// check scheduled. It returns the number of checks added.
func (a *Auditor) Scan() (int, error) {
	bags, err := a.Cache.Bags()
	if err != nil {
		return 0, err
	}
	var n int
	for _, path := range bags {
		name, err := filepath.Rel(a.Cache.Root, path)
		if err != nil {
			return n, err
		}
		name = filepath.ToSlash(name)
		when, err := a.DB.LookupCheck(name)
		if err != nil {
			return n, err
		}
		if !when.IsZero() {
			continue
		}
		_, err = a.DB.UpdateFixity(fixitydb.Fixity{
			Bag:           name,
			ScheduledTime: a.clock().Now(),
			Status:        fixitydb.StatusScheduled,
		})
		if err != nil {
			return n, err
		}
		n++
	}
	log.WithField("count", n).Infoln("Scheduled fixity checks for new bags")
	return n, nil
}
