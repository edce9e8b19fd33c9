package util

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/facebookgo/clock"
)

func TestRateCounterRefill(t *testing.T) {
	clk := clock.NewMock()
	// 1 credit per second is 60 credits per interval
	r := NewRateCounterClock(1, clk)
	defer r.Stop()

	data := bytes.Repeat([]byte("x"), 100)
	buf := make([]byte, 60)
	n, err := io.ReadFull(r.Wrap(bytes.NewReader(data)), buf)
	if err != nil {
		t.Fatalf("Received %s", err)
	}
	if n != 60 {
		t.Errorf("Received %d bytes, expected %d", n, 60)
	}
	if c := r.Credits(); c != 0 {
		t.Errorf("Received %d credits, expected %d", c, 0)
	}

	// no credits left, a read must wait for the next refill
	done := make(chan struct{})
	go func() {
		io.ReadFull(r.Wrap(bytes.NewReader(data)), make([]byte, 10))
		close(done)
	}()
	select {
	case <-done:
		t.Fatalf("Read finished without credits")
	case <-time.After(20 * time.Millisecond):
	}
	clk.Add(RateInterval)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Read did not resume after refill")
	}
}

func TestRateCounterStop(t *testing.T) {
	r := NewRateCounterClock(0, clock.NewMock())
	r.Stop()
	_, err := r.Wrap(bytes.NewReader([]byte("abc"))).Read(make([]byte, 3))
	if err != ErrStopped {
		t.Errorf("Received %v, expected %v", err, ErrStopped)
	}
}

func TestRateCounterNoCredits(t *testing.T) {
	r := NewRateCounterClock(1, clock.NewMock())
	reader := r.Wrap(bytes.NewReader(bytes.Repeat([]byte("x"), 200)))

	var total int
	n, err := reader.Read(make([]byte, 60))
	if err != nil {
		t.Fatalf("Received %s", err)
	}
	total += n

	// the balance is zero and the clock never advances
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := reader.Read(make([]byte, 60))
		done <- result{n, err}
	}()
	select {
	case res := <-done:
		t.Fatalf("Read %d bytes with %d credits", res.n, r.Credits())
	case <-time.After(20 * time.Millisecond):
	}
	r.Stop()
	res := <-done
	total += res.n
	if res.err != ErrStopped {
		t.Errorf("Received %v, expected %v", res.err, ErrStopped)
	}
	if total != 60 {
		t.Errorf("Read %d bytes, expected %d", total, 60)
	}
	if c := r.Credits(); c != 0 {
		t.Errorf("Received %d credits, expected %d", c, 0)
	}
}

func TestRateCounterWaitRefill(t *testing.T) {
	clk := clock.NewMock()
	r := NewRateCounterClock(1, clk)
	defer r.Stop()
	r.Use(90)

	done := make(chan error, 1)
	go func() { done <- r.Wait() }()
	// one refill leaves the balance at -30
	clk.Add(RateInterval)
	select {
	case <-done:
		t.Fatalf("Wait returned with %d credits", r.Credits())
	case <-time.After(20 * time.Millisecond):
	}
	clk.Add(RateInterval)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Received %s", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Wait did not return after refill")
	}
	if c := r.Credits(); c != 30 {
		t.Errorf("Received %d credits, expected %d", c, 30)
	}
}
