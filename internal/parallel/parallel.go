// Package parallel selects between a sequential loop and a bounded
// goroutine fan-out for independent units of work.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Strategy runs fn for every i in [0, n). Units must not share mutable
// state, so every strategy yields the same results.
type Strategy interface {
	Run(n int, fn func(i int) error) error
}

type sequential struct{}

// Sequential returns a strategy that runs the units in index order on the
// calling goroutine and stops at the first error.
func Sequential() Strategy {
	return sequential{}
}

func (sequential) Run(n int, fn func(i int) error) error {
	for i := 0; i < n; i++ {
		if err := fn(i); err != nil {
			return err
		}
	}
	return nil
}

type fanOut struct {
	workers int
}

// Parallel returns a strategy that fans units out over at most workers
// goroutines. A non-positive worker count uses GOMAXPROCS.
func Parallel(workers int) Strategy {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return fanOut{workers: workers}
}

func (p fanOut) Run(n int, fn func(i int) error) error {
	if n <= 1 || p.workers == 1 {
		return sequential{}.Run(n, fn)
	}

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return fn(i)
		})
	}
	return g.Wait()
}

// Chunks splits [0, n) into at most parts contiguous ranges and runs fn on
// each range through s.
func Chunks(s Strategy, n, parts int, fn func(start, end int) error) error {
	if n == 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if parts > n {
		parts = n
	}
	size := (n + parts - 1) / parts
	count := (n + size - 1) / size
	return s.Run(count, func(c int) error {
		start := c * size
		end := start + size
		if end > n {
			end = n
		}
		return fn(start, end)
	})
}
