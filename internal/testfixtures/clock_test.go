package testfixtures

import (
	"sync"
	"testing"
	"time"
)

func TestClock(t *testing.T) {
	t.Parallel()

	t.Run("zero start means seed day", func(t *testing.T) {
		t.Parallel()

		if got := NewClock(time.Time{}).Now(); !got.Equal(SeedDay) {
			t.Fatalf("expected %v, got %v", SeedDay, got)
		}
	})

	t.Run("advance and set", func(t *testing.T) {
		t.Parallel()

		clock := NewClock(SeedDay)
		if got := clock.Advance(30 * time.Minute); !got.Equal(SeedDay.Add(30 * time.Minute)) {
			t.Fatalf("unexpected time after Advance: %v", got)
		}
		clock.Set(SeedDay.AddDate(0, 0, -1))
		if got := clock.Now(); !got.Equal(SeedDay.AddDate(0, 0, -1)) {
			t.Fatalf("unexpected time after Set: %v", got)
		}
	})

	t.Run("concurrent advances are not lost", func(t *testing.T) {
		t.Parallel()

		clock := NewClock(SeedDay)
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				clock.Advance(time.Minute)
			}()
		}
		wg.Wait()
		if got := clock.Now(); !got.Equal(SeedDay.Add(20 * time.Minute)) {
			t.Fatalf("expected 20 minutes to pass, got %v", got.Sub(SeedDay))
		}
	})
}
