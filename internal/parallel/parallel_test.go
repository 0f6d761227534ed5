package parallel

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestStrategiesVisitEveryIndex(t *testing.T) {
	strategies := map[string]Strategy{
		"sequential": Sequential(),
		"parallel":   Parallel(4),
		"default":    Parallel(0),
	}

	for name, s := range strategies {
		t.Run(name, func(t *testing.T) {
			const n = 1000
			out := make([]int, n)
			err := s.Run(n, func(i int) error {
				out[i] = i * i
				return nil
			})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			for i := range out {
				if out[i] != i*i {
					t.Fatalf("index %d not visited", i)
				}
			}
		})
	}
}

func TestStrategyPropagatesError(t *testing.T) {
	errBoom := errors.New("boom")
	for name, s := range map[string]Strategy{"sequential": Sequential(), "parallel": Parallel(3)} {
		t.Run(name, func(t *testing.T) {
			err := s.Run(50, func(i int) error {
				if i == 17 {
					return errBoom
				}
				return nil
			})
			if !errors.Is(err, errBoom) {
				t.Fatalf("expected errBoom, got %v", err)
			}
		})
	}
}

func TestSequentialStopsAtFirstError(t *testing.T) {
	var calls int32
	_ = Sequential().Run(10, func(i int) error {
		atomic.AddInt32(&calls, 1)
		if i == 2 {
			return errors.New("stop")
		}
		return nil
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestChunks(t *testing.T) {
	testCases := []struct {
		n, parts int
	}{
		{0, 4}, {1, 4}, {10, 3}, {10, 10}, {10, 20}, {1024, 7}, {5, 0},
	}

	for _, tc := range testCases {
		var covered int64
		seen := make([]int32, tc.n)
		err := Chunks(Parallel(4), tc.n, tc.parts, func(start, end int) error {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
			atomic.AddInt64(&covered, int64(end-start))
			return nil
		})
		if err != nil {
			t.Fatalf("Chunks(%d, %d) failed: %v", tc.n, tc.parts, err)
		}
		if covered != int64(tc.n) {
			t.Errorf("Chunks(%d, %d) covered %d indices", tc.n, tc.parts, covered)
		}
		for i, c := range seen {
			if c != 1 {
				t.Errorf("Chunks(%d, %d) visited index %d %d times", tc.n, tc.parts, i, c)
			}
		}
	}
}
