// Command framegraph drives a synthetic per-frame job graph through the
// scheduler: a root job fans out into tile jobs and a present job waits on
// the root. With -journal the completed jobs are written to a Bedrock store.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	bedrock "github.com/yirzhou/bedrock"

	"github.com/yirzhou/jobgraph"
)

func main() {
	frames := flag.Int("frames", 60, "number of frames to simulate")
	fanout := flag.Int("fanout", 64, "tile jobs per frame")
	workers := flag.Int("workers", 8, "maximum worker goroutines")
	work := flag.Duration("work", 50*time.Microsecond, "busy time per tile job")
	journalDir := flag.String("journal", "", "directory for the job journal (disabled if empty)")
	cleanup := flag.Bool("cleanup", false, "delete the journal store on exit")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	runID := uuid.NewString()

	opts := []jobgraph.Option{
		jobgraph.WithMaxJobs(*fanout + 16),
		jobgraph.WithWorkers(1, *workers),
		jobgraph.WithLogger(logger),
	}

	var (
		store   *bedrock.KVStore
		journal *jobgraph.Journal
	)
	if *journalDir != "" {
		cfg := bedrock.NewDefaultConfiguration().
			WithBaseDir(filepath.Join(*journalDir, runID)).
			WithEnableMaintenance(false).
			WithNoLog()
		var err error
		store, err = bedrock.Open(cfg)
		if err != nil {
			log.Fatalf("open journal store: %v", err)
		}
		journal = jobgraph.NewJournal(store,
			jobgraph.WithJournalSession(runID),
			jobgraph.WithJournalLogger(logger),
		)
		opts = append(opts, jobgraph.WithObserver(journal))
	}

	s, err := jobgraph.New(opts...)
	if err != nil {
		log.Fatalf("create scheduler: %v", err)
	}

	var tiles atomic.Int64
	tile := func(_ *jobgraph.Worker, _ jobgraph.JobID, _ any) {
		deadline := time.Now().Add(*work)
		for time.Now().Before(deadline) {
		}
		tiles.Add(1)
	}

	start := time.Now()
	var lastPresent jobgraph.JobID
	for range *frames {
		root := s.Go(func(w *jobgraph.Worker, id jobgraph.JobID, _ any) {
			for range *fanout {
				w.Submit(jobgraph.Job{Func: tile, Parent: id})
			}
		}, nil)
		lastPresent = s.Submit(jobgraph.Job{Dependency: root, Priority: 10})
		s.Wait(lastPresent)

		if journal != nil {
			if _, err := journal.Flush(); err != nil {
				logger.Error("journal flush", slog.String("error", err.Error()))
			}
		}
	}
	elapsed := time.Since(start)
	s.Stop()

	st := s.Stats()
	fmt.Printf("run %s: %d frames, %d tiles, %d jobs in %s (%.1f us/frame) on %d workers\n",
		runID, *frames, tiles.Load(), st.Completed, elapsed,
		float64(elapsed.Microseconds())/float64(max(*frames, 1)), st.Workers)

	if journal != nil {
		count, err := journal.Count()
		if err != nil {
			log.Fatalf("read journal count: %v", err)
		}
		fmt.Printf("journal %s: %d records, %d dropped\n", journal.Session(), count, journal.Dropped())
		if rec, err := journal.Load(lastPresent); err == nil {
			fmt.Printf("last present: worker %d, priority %d, ran %s\n",
				rec.Worker, rec.Priority, rec.FinishedAt.Sub(rec.StartedAt))
		}
		if *cleanup {
			if err := store.CloseAndCleanUp(); err != nil {
				log.Fatalf("clean up journal store: %v", err)
			}
		}
	}
}
