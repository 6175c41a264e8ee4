package jobgraph

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	bedrock "github.com/yirzhou/bedrock"

	"github.com/yirzhou/jobgraph/container"
)

// Record is the journal entry for one completed job.
type Record struct {
	ID         JobID     `json:"id"`
	Slot       uint32    `json:"slot"`
	Generation uint32    `json:"generation"`
	Parent     JobID     `json:"parent"`
	Priority   uint32    `json:"priority"`
	Worker     uint8     `json:"worker"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Journal keeps a durable log of completed jobs in a Bedrock store, for
// looking at what a frame's job graph actually did after the fact.
//
// Journal is an Observer. Completed jobs are buffered in a fixed backlog
// and written by Flush; when the backlog is full the oldest record is
// dropped.
type Journal struct {
	db      *bedrock.KVStore
	session string
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	started *container.HashMap[JobID, int64]
	backlog *container.FixedRingQueue[Record]
	dropped uint64

	// flushMu serialises Flush. retry holds records from a failed commit.
	flushMu sync.Mutex
	retry   *container.RingQueue[Record]
	written uint64
}

// JournalOption configures a Journal.
type JournalOption func(*journalConfig)

type journalConfig struct {
	backlog int
	session string
	logger  *slog.Logger
	now     func() time.Time
}

// WithJournalBacklog sets how many unflushed records are kept.
func WithJournalBacklog(n int) JournalOption {
	return func(c *journalConfig) { c.backlog = n }
}

// WithJournalSession sets the key prefix instead of a random one.
func WithJournalSession(session string) JournalOption {
	return func(c *journalConfig) { c.session = session }
}

// WithJournalLogger sets the logger.
func WithJournalLogger(l *slog.Logger) JournalOption {
	return func(c *journalConfig) { c.logger = l }
}

// NewJournal creates a Journal writing to db.
func NewJournal(db *bedrock.KVStore, opts ...JournalOption) *Journal {
	cfg := journalConfig{
		backlog: 1024,
		session: uuid.NewString(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = newNopLogger()
	}
	if cfg.backlog < 1 {
		cfg.backlog = 1
	}
	return &Journal{
		db:      db,
		session: cfg.session,
		logger:  cfg.logger,
		now:     cfg.now,
		started: container.NewHashMap[JobID, int64](nil),
		backlog: container.NewFixedRingQueue[Record](cfg.backlog, cfg.logger),
		retry:   container.NewRingQueue[Record](nil),
	}
}

// Session returns the key prefix of this journal's records.
func (j *Journal) Session() string { return j.session }

func (j *Journal) recordKey(id JobID) []byte {
	return fmt.Appendf(nil, "%s/%016x", j.session, uint64(id))
}

func (j *Journal) countKey() []byte {
	return []byte(j.session + "/count")
}

// JobQueued implements Observer.
func (j *Journal) JobQueued(JobID, uint32) {}

// JobStarted implements Observer.
func (j *Journal) JobStarted(_ *Worker, id JobID) {
	now := j.now().UnixNano()
	j.mu.Lock()
	j.started.Insert(id, now)
	j.mu.Unlock()
}

// JobFinished implements Observer.
func (j *Journal) JobFinished(w *Worker, id JobID, parent JobID, priority uint32) {
	finished := j.now()
	rec := Record{
		ID:         id,
		Slot:       id.Slot(),
		Generation: id.Generation(),
		Parent:     parent,
		Priority:   priority,
		FinishedAt: finished,
	}
	if w != nil {
		rec.Worker = w.Index()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	// A parent finishes on whichever goroutine completes its last child;
	// its start time is still the one recorded when its own body ran.
	if ns, ok := j.started.Get(id); ok {
		rec.StartedAt = time.Unix(0, ns)
		j.started.Remove(id)
	} else {
		rec.StartedAt = finished
	}
	if j.backlog.Push(rec) {
		j.dropped++
	}
}

// Pending returns the number of records not yet flushed.
func (j *Journal) Pending() int {
	j.mu.Lock()
	n := j.backlog.Len()
	j.mu.Unlock()
	j.flushMu.Lock()
	n += j.retry.Len()
	j.flushMu.Unlock()
	return n
}

// Dropped returns how many records were overwritten before a flush.
func (j *Journal) Dropped() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Flush writes every buffered record in one transaction and returns how
// many were written. On failure the records are kept for the next Flush.
func (j *Journal) Flush() (int, error) {
	j.flushMu.Lock()
	defer j.flushMu.Unlock()

	j.mu.Lock()
	for {
		rec, ok := j.backlog.Pop()
		if !ok {
			break
		}
		j.retry.Push(rec)
	}
	j.mu.Unlock()

	n := j.retry.Len()
	if n == 0 {
		return 0, nil
	}

	txn := j.db.BeginTransaction()
	for i := range n {
		rec := j.retry.At(i)
		buf, err := json.Marshal(&rec)
		if err != nil {
			txn.Rollback()
			return 0, err
		}
		if err := txn.Put(j.recordKey(rec.ID), buf); err != nil {
			txn.Rollback()
			return 0, err
		}
	}
	total := j.written + uint64(n)
	if err := txn.Put(j.countKey(), strconv.AppendUint(nil, total, 10)); err != nil {
		txn.Rollback()
		return 0, err
	}
	if err := txn.Commit(); err != nil {
		j.logger.Warn("journal flush failed, keeping records",
			slog.Int("records", n),
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	j.written = total
	j.retry.Clear()
	j.logger.Debug("journal flushed", slog.Int("records", n), slog.String("session", j.session))
	return n, nil
}

// Load reads back the record for id.
func (j *Journal) Load(id JobID) (*Record, error) {
	raw, found := j.db.Get(j.recordKey(id))
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	rec := &Record{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Count returns the number of records durably written for this session.
func (j *Journal) Count() (uint64, error) {
	raw, found := j.db.Get(j.countKey())
	if !found {
		return 0, nil
	}
	return strconv.ParseUint(string(raw), 10, 64)
}
