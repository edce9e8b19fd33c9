package util

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// A RateCounter meters how many bytes are read through it. Reads draw down a
// pool of credits, and the pool is topped up once every RateInterval. A read
// only starts while the balance is positive, so the last read before a refill
// may take the balance negative, and later reads wait until a refill brings
// it back above zero.
type RateCounter struct {
	stop chan struct{} // closed by Stop

	m       sync.Mutex // protects below
	credits int64
	refill  chan struct{} // closed and replaced on every refill
}

// RateInterval is the time between refills of the pool.
const RateInterval = 1 * time.Minute

// NewRateCounter returns a counter where credits accumulate
// at the given credits per second. However, the credits are
// not accumulated every second. Instead the entire amount
// due is added every RateInterval.
func NewRateCounter(rate float64) *RateCounter {
	return NewRateCounterClock(rate, clock.New())
}

// NewRateCounterClock is NewRateCounter with the refill ticker driven by the
// given clock. Tests pass a clock.Mock to control refills.
func NewRateCounterClock(rate float64, clk clock.Clock) *RateCounter {
	amount := int64(rate * RateInterval.Seconds())
	r := &RateCounter{
		stop:    make(chan struct{}),
		credits: amount,
		refill:  make(chan struct{}),
	}
	go r.refiller(amount, clk.Ticker(RateInterval))
	return r
}

// Use some number of units. It is okay if it takes this counter negative.
func (r *RateCounter) Use(count int64) {
	r.m.Lock()
	r.credits -= count
	r.m.Unlock()
}

// Credits returns the current balance.
func (r *RateCounter) Credits() int64 {
	r.m.Lock()
	defer r.m.Unlock()
	return r.credits
}

// Wait blocks until the balance is positive. It returns ErrStopped if the
// counter is stopped first.
func (r *RateCounter) Wait() error {
	for {
		select {
		case <-r.stop:
			return ErrStopped
		default:
		}
		r.m.Lock()
		if r.credits > 0 {
			r.m.Unlock()
			return nil
		}
		next := r.refill
		r.m.Unlock()
		select {
		case <-next:
		case <-r.stop:
			return ErrStopped
		}
	}
}

// Stop the background refills. Pending and future reads through a wrapped
// reader fail with ErrStopped. Will panic if called twice.
func (r *RateCounter) Stop() {
	close(r.stop)
}

func (r *RateCounter) refiller(amount int64, tick *clock.Ticker) {
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			r.m.Lock()
			r.credits += amount
			close(r.refill)
			r.refill = make(chan struct{})
			r.m.Unlock()
		case <-r.stop:
			return
		}
	}
}

// Wrap takes an io.Reader and returns a new one where reads are limited by
// this RateCounter. Each Read waits until the balance is positive and then
// charges the bytes it read. More than one goroutine may share a
// RateCounter. Once the RateCounter is stopped the reader returns ErrStopped.
func (r *RateCounter) Wrap(reader io.Reader) io.Reader {
	return rateReader{reader: reader, rate: r}
}

// ErrStopped means a read failed because the governing rate counter was stopped.
var ErrStopped = errors.New("RateCounter stopped")

type rateReader struct {
	reader io.Reader
	rate   *RateCounter
}

func (r rateReader) Read(p []byte) (int, error) {
	if err := r.rate.Wait(); err != nil {
		return 0, err
	}
	n, err := r.reader.Read(p)
	r.rate.Use(int64(n))
	return n, err
}
