package habit

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// DERIVATION
// =============================================================================

var dateComparer = cmp.Comparer(func(a, b Date) bool { return a.Equal(b) })

func d(s string) Date { return MustParseDate(s) }

func datePtr(s string) *Date {
	v := MustParseDate(s)
	return &v
}

func TestDeriveStreak(t *testing.T) {
	today := d("2025-03-10")

	tests := []struct {
		name  string
		prior Streak
		dates []Date
		want  Streak
	}{
		{
			name:  "no completions",
			prior: Streak{LongestStreak: 5, CurrentStreak: 2, LastCompletion: datePtr("2025-03-09")},
			want:  Streak{LongestStreak: 5},
		},
		{
			name:  "today only",
			dates: []Date{today},
			want:  Streak{CurrentStreak: 1, LongestStreak: 1, LastCompletion: datePtr("2025-03-10")},
		},
		{
			name:  "yesterday only keeps the streak alive",
			dates: []Date{d("2025-03-09")},
			want:  Streak{CurrentStreak: 1, LongestStreak: 1, LastCompletion: datePtr("2025-03-09")},
		},
		{
			name:  "three consecutive days ending today",
			dates: []Date{d("2025-03-08"), d("2025-03-10"), d("2025-03-09")},
			want:  Streak{CurrentStreak: 3, LongestStreak: 3, LastCompletion: datePtr("2025-03-10")},
		},
		{
			name:  "gap stops the walk",
			dates: []Date{d("2025-03-10"), d("2025-03-08")},
			prior: Streak{LongestStreak: 3},
			want:  Streak{CurrentStreak: 1, LongestStreak: 3, LastCompletion: datePtr("2025-03-10")},
		},
		{
			name:  "older consecutive run is not counted after a gap",
			dates: []Date{d("2025-03-10"), d("2025-03-07"), d("2025-03-06"), d("2025-03-05")},
			want:  Streak{CurrentStreak: 1, LongestStreak: 1, LastCompletion: datePtr("2025-03-10")},
		},
		{
			name:  "most recent two days ago breaks the streak",
			dates: []Date{d("2025-03-08"), d("2025-03-07")},
			prior: Streak{LongestStreak: 2},
			want:  Streak{CurrentStreak: 0, LongestStreak: 2, LastCompletion: datePtr("2025-03-08")},
		},
		{
			name:  "old history only",
			dates: []Date{d("2025-03-06")},
			want:  Streak{CurrentStreak: 0, LongestStreak: 0, LastCompletion: datePtr("2025-03-06")},
		},
		{
			name:  "longest grows with current",
			dates: []Date{d("2025-03-09"), d("2025-03-08")},
			prior: Streak{LongestStreak: 1},
			want:  Streak{CurrentStreak: 2, LongestStreak: 2, LastCompletion: datePtr("2025-03-09")},
		},
		{
			name:  "future date is last but not anchored",
			dates: []Date{d("2025-03-12"), d("2025-03-10")},
			want:  Streak{CurrentStreak: 0, LongestStreak: 0, LastCompletion: datePtr("2025-03-12")},
		},
		{
			name:  "negative prior longest is clamped",
			prior: Streak{LongestStreak: -4},
			want:  Streak{LongestStreak: 0},
		},
		{
			name:  "identity of prior is kept",
			prior: Streak{ID: 9, HabitID: 4, LongestStreak: 1},
			dates: []Date{today},
			want:  Streak{ID: 9, HabitID: 4, CurrentStreak: 1, LongestStreak: 1, LastCompletion: datePtr("2025-03-10")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveStreak(tt.prior, tt.dates, today)
			if diff := cmp.Diff(tt.want, got, dateComparer); diff != "" {
				t.Errorf("DeriveStreak() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeriveStreak_DoesNotReorderInput(t *testing.T) {
	dates := []Date{d("2025-03-08"), d("2025-03-10"), d("2025-03-09")}
	DeriveStreak(Streak{}, dates, d("2025-03-10"))
	assert.Equal(t, "2025-03-08", dates[0].String())
}

func TestDeriveStreak_MonthBoundary(t *testing.T) {
	dates := []Date{d("2025-03-01"), d("2025-02-28"), d("2025-02-27")}
	got := DeriveStreak(Streak{}, dates, d("2025-03-01"))
	assert.Equal(t, 3, got.CurrentStreak)
}

func TestClock_TodayIsUTC(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC.
	est := time.FixedZone("EST", -5*60*60)
	clock := FixedClock(time.Date(2025, time.March, 9, 23, 30, 0, 0, est))
	assert.Equal(t, "2025-03-10", clock.Today().String())
}

// =============================================================================
// KEYED MUTEX
// =============================================================================

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(7)
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, km.size(), "entries are dropped once released")
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := newKeyedMutex()
	unlockA := km.Lock(1)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock(2)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another key blocked")
	}
}
