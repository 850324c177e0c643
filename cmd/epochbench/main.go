// Command epochbench drives the skip list under a configurable number
// of concurrent workers, reporting throughput and the reclamation
// core's allocation profile. It exists to exercise epoch and skiplist
// together under real contention, the way a library this
// size would ship a small load-generation tool alongside its tests.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/lockfree-go/epochset/epoch"
	"github.com/lockfree-go/epochset/skiplist"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("epochbench", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML epoch.Config file (optional)")
	workers := fs.Int("workers", 8, "number of concurrent goroutines")
	duration := fs.Duration("duration", 2*time.Second, "how long to run the mixed workload")
	keyspace := fs.Uint64("keyspace", 100000, "number of distinct keys the workload draws from")
	profile := fs.Bool("profile", true, "enable epoch.Config.Profile allocation counters")
	verbose := fs.Bool("verbose", false, "attach a stderr JSON logger to the reclamation core")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := maxprocs.Set(maxprocs.Logger(log.Printf)); err != nil {
		return fmt.Errorf("epochbench: set GOMAXPROCS: %w", err)
	}

	cfg := epoch.DefaultConfig()
	if *configPath != "" {
		loaded, err := epoch.LoadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("epochbench: load config: %w", err)
		}
		cfg = loaded
	}
	cfg.Profile = *profile

	var opts []epoch.Option
	if *verbose {
		opts = append(opts, epoch.WithLogger(epoch.NewLogger()))
	}

	g := epoch.New(cfg, opts...)
	set := skiplist.New[uint64](g)

	var updates, lookups, removes atomic.Uint64
	stop := make(chan struct{})
	time.AfterFunc(*duration, func() { close(stop) })

	var grp errgroup.Group
	for w := 0; w < *workers; w++ {
		w := w
		grp.Go(func() error {
			h := g.NewHandle()
			rng := rand.New(rand.NewPCG(uint64(w)+1, uint64(w)*2+1))
			for {
				select {
				case <-stop:
					return nil
				default:
				}

				// +2 steers clear of epoch.KeyReservedMin/KeyReserved, the
				// two smallest keys epoch.AssertValidKey rejects.
				key := rng.Uint64()%(*keyspace) + 2
				switch rng.IntN(3) {
				case 0:
					h.Critical(func() { set.Update(h, key, key, true) })
					updates.Add(1)
				case 1:
					h.Critical(func() { set.Lookup(h, key) })
					lookups.Add(1)
				case 2:
					h.Critical(func() { set.Remove(h, key) })
					removes.Add(1)
				}
			}
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}

	total := updates.Load() + lookups.Load() + removes.Load()
	fmt.Printf("workers=%d duration=%s updates=%d lookups=%d removes=%d total=%d ops/sec=%.0f\n",
		*workers, *duration, updates.Load(), lookups.Load(), removes.Load(), total,
		float64(total)/duration.Seconds())

	if cfg.Profile {
		stats := g.Stats()
		fmt.Printf("allocations=%d total_bytes=%d\n", stats.Allocations, stats.TotalBytes)
	}

	return nil
}
