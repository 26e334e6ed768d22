package status

import (
	"errors"
	"sync"
	"testing"
)

func TestTracker_SingleFlight(t *testing.T) {
	tr := NewTracker()

	if !tr.IsIdle() {
		t.Fatalf("expected idle start, got %s", tr.Current())
	}
	if err := tr.Begin("crawling manually"); err != nil {
		t.Fatalf("Begin from idle failed: %v", err)
	}

	// A second crawl and a compress attempt are both rejected while active.
	var busy *ErrBusy
	if err := tr.Begin("crawling manually"); !errors.As(err, &busy) {
		t.Errorf("expected ErrBusy, got %v", err)
	} else if busy.Current != "crawling manually" {
		t.Errorf("expected busy state to name the active run, got %s", busy.Current)
	}
	if err := tr.Begin("compressing images"); err == nil {
		t.Error("expected compress attempt to be rejected while crawling")
	}

	tr.Set("crawling manually [50% completed]")
	if tr.Current() != "crawling manually [50% completed]" {
		t.Errorf("unexpected state: %s", tr.Current())
	}

	tr.Done()
	if !tr.IsIdle() {
		t.Errorf("expected idle after Done, got %s", tr.Current())
	}
	if err := tr.Begin("compressing images"); err != nil {
		t.Errorf("expected Begin to succeed after Done: %v", err)
	}
}

func TestTracker_ConcurrentBegin(t *testing.T) {
	tr := NewTracker()

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Begin("crawling") == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Errorf("expected exactly one winner, got %d", count)
	}
}
