package history

import (
	"strconv"
	"sync"
	"testing"

	"github.com/use-agent/wlanlogin/models"
)

func attempt(id int, ok bool) models.Attempt {
	return models.Attempt{
		ID:      strconv.Itoa(id),
		Trigger: "watch",
		Outcome: &models.LoginOutcome{Authenticated: ok},
	}
}

func TestRecordEvictsOldest(t *testing.T) {
	h := New(3)
	for i := 1; i <= 5; i++ {
		h.Record(attempt(i, false))
	}
	got := h.List(0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"5", "4", "3"} {
		if got[i].ID != want {
			t.Errorf("List()[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
	if h.Total() != 5 {
		t.Errorf("Total() = %d, want 5", h.Total())
	}
}

func TestListLimit(t *testing.T) {
	h := New(10)
	for i := 1; i <= 4; i++ {
		h.Record(attempt(i, true))
	}
	got := h.List(2)
	if len(got) != 2 || got[0].ID != "4" || got[1].ID != "3" {
		t.Errorf("List(2) = %+v", got)
	}
	if last, ok := h.Last(); !ok || last.ID != "4" {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
}

func TestConsecutiveFailures(t *testing.T) {
	h := New(10)
	if _, ok := h.Last(); ok {
		t.Error("Last() on empty history reported an attempt")
	}
	h.Record(attempt(1, false))
	h.Record(models.Attempt{ID: "2", Error: &models.ErrorDetail{Code: models.ErrCodeNavigation}})
	if n := h.ConsecutiveFailures(); n != 2 {
		t.Errorf("ConsecutiveFailures() = %d, want 2", n)
	}
	h.Record(attempt(3, true))
	if n := h.ConsecutiveFailures(); n != 0 {
		t.Errorf("ConsecutiveFailures() after success = %d, want 0", n)
	}
}

func TestConcurrentRecord(t *testing.T) {
	h := New(50)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Record(attempt(i, i%2 == 0))
			h.List(5)
		}(i)
	}
	wg.Wait()
	if h.Total() != 100 || len(h.List(0)) != 50 {
		t.Errorf("Total() = %d len = %d", h.Total(), len(h.List(0)))
	}
}
