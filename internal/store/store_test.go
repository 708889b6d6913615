package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/confbook/confbook/internal/clock"
	"github.com/confbook/confbook/internal/model"
)

func testConference(name string, start, end time.Time, slots int) model.Conference {
	return model.Conference{
		Name:     name,
		Location: "Berlin",
		Start:    start,
		End:      end,
		Slots:    slots,
		Topics:   []string{"go"},
	}
}

func TestConferenceStore_Register(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewConferenceStore(clock.NewFixed(now))

	t.Run("valid window", func(t *testing.T) {
		conf, err := s.Register(testConference("GopherCon", now.Add(time.Hour), now.Add(4*time.Hour), 100))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if conf.Capacity != 100 {
			t.Fatalf("expected capacity 100, got %d", conf.Capacity)
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := s.Register(testConference("GopherCon", now.Add(time.Hour), now.Add(2*time.Hour), 10))
		if !errors.Is(err, ErrDuplicateName) {
			t.Fatalf("expected ErrDuplicateName, got %v", err)
		}
	})

	t.Run("start not before end", func(t *testing.T) {
		_, err := s.Register(testConference("Backwards", now.Add(2*time.Hour), now.Add(time.Hour), 10))
		if !errors.Is(err, ErrInvalidWindow) {
			t.Fatalf("expected ErrInvalidWindow, got %v", err)
		}
	})

	t.Run("start in the past", func(t *testing.T) {
		_, err := s.Register(testConference("Yesterday", now.Add(-time.Hour), now.Add(time.Hour), 10))
		if !errors.Is(err, ErrInvalidWindow) {
			t.Fatalf("expected ErrInvalidWindow, got %v", err)
		}
	})

	t.Run("duration over 12 hours", func(t *testing.T) {
		_, err := s.Register(testConference("Marathon", now.Add(time.Hour), now.Add(14*time.Hour), 10))
		if !errors.Is(err, ErrInvalidWindow) {
			t.Fatalf("expected ErrInvalidWindow, got %v", err)
		}
	})

	t.Run("zero capacity allowed", func(t *testing.T) {
		conf, err := s.Register(testConference("Tiny", now.Add(time.Hour), now.Add(2*time.Hour), 0))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if conf.TryReserve() {
			t.Fatal("expected TryReserve to fail for zero capacity")
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		if _, err := s.Get("Nope"); !errors.Is(err, ErrConferenceNotFound) {
			t.Fatalf("expected ErrConferenceNotFound, got %v", err)
		}
	})
}

func TestConference_TryReserveConcurrent(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("20 racers against capacity 1", func(t *testing.T) {
		s := NewConferenceStore(clock.NewFixed(now))
		conf, err := s.Register(testConference("Solo", now.Add(time.Hour), now.Add(2*time.Hour), 1))
		if err != nil {
			t.Fatalf("register: %v", err)
		}

		var wg sync.WaitGroup
		results := make(chan bool, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- conf.TryReserve()
			}()
		}
		wg.Wait()
		close(results)

		won := 0
		for ok := range results {
			if ok {
				won++
			}
		}
		if won != 1 {
			t.Fatalf("expected exactly 1 successful reservation, got %d", won)
		}
		if conf.Held() != 1 {
			t.Fatalf("expected 1 held slot, got %d", conf.Held())
		}
	})

	t.Run("50 racers against capacity 100", func(t *testing.T) {
		s := NewConferenceStore(clock.NewFixed(now))
		conf, err := s.Register(testConference("Roomy", now.Add(time.Hour), now.Add(2*time.Hour), 100))
		if err != nil {
			t.Fatalf("register: %v", err)
		}

		var wg sync.WaitGroup
		failures := make(chan struct{}, 50)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !conf.TryReserve() {
					failures <- struct{}{}
				}
			}()
		}
		wg.Wait()
		close(failures)

		if n := len(failures); n != 0 {
			t.Fatalf("expected no failed reservations, got %d", n)
		}
		if conf.Remaining() != 50 {
			t.Fatalf("expected 50 remaining, got %d", conf.Remaining())
		}
	})

	t.Run("release frees a slot", func(t *testing.T) {
		s := NewConferenceStore(clock.NewFixed(now))
		conf, err := s.Register(testConference("Churn", now.Add(time.Hour), now.Add(2*time.Hour), 1))
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		if !conf.TryReserve() {
			t.Fatal("first reserve should succeed")
		}
		if conf.TryReserve() {
			t.Fatal("second reserve should fail at capacity")
		}
		conf.Release()
		if !conf.TryReserve() {
			t.Fatal("reserve after release should succeed")
		}
		// Release never drives the counter below zero.
		conf.Release()
		conf.Release()
		conf.Release()
		if conf.Held() != 0 {
			t.Fatalf("expected 0 held after releases, got %d", conf.Held())
		}
	})
}

func TestUserStore(t *testing.T) {
	t.Parallel()

	s := NewUserStore()
	u := model.User{ID: "alice1", Topics: []string{"go", "distributed systems"}}

	if err := s.Register(u); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Register(u); !errors.Is(err, ErrDuplicateUser) {
		t.Fatalf("expected ErrDuplicateUser, got %v", err)
	}

	got, err := s.Get("alice1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "alice1" {
		t.Fatalf("expected alice1, got %s", got.ID)
	}
	if _, err := s.Get("bob2"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
