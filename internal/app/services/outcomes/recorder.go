// Package outcomes keeps a bounded in-memory history of sponsorship
// attempts and derives aggregate statistics from it on read. History is
// a ring: once capacity is reached the oldest record is evicted for
// every new one appended. An optional background sweep persists records
// to a JSONL file so evicted history is not lost.
package outcomes

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drsui/gas-station/internal/app/domain/sponsorship"
)

// DefaultCapacity bounds the ring when the config leaves it unset.
const DefaultCapacity = 1000

// topSendersLimit caps the top-senders aggregate in Stats.
const topSendersLimit = 5

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Sender string
	Status sponsorship.Status
	Limit  int
}

// Recorder is the outcome ring buffer. Safe for concurrent use.
type Recorder struct {
	mu       sync.RWMutex
	capacity int
	records  []sponsorship.Record
	nextSeq  uint64
	now      func() time.Time
}

// NewRecorder builds a ring with the given capacity, falling back to
// DefaultCapacity when capacity is not positive.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		capacity: capacity,
		records:  make([]sponsorship.Record, 0, capacity),
		nextSeq:  1,
		now:      time.Now,
	}
}

// Append stores a new pending record and returns its id. The oldest
// record is evicted when the ring is full.
func (r *Recorder) Append(sender, callerIP string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := sponsorship.Record{
		ID:        uuid.New().String(),
		Seq:       r.nextSeq,
		Timestamp: r.now().UTC(),
		Sender:    strings.ToLower(sender),
		Status:    sponsorship.StatusPending,
		CallerIP:  callerIP,
	}
	r.nextSeq++

	if len(r.records) >= r.capacity {
		copy(r.records, r.records[1:])
		r.records = r.records[:len(r.records)-1]
	}
	r.records = append(r.records, rec)
	return rec.ID
}

// Resolve patches the record with the given id to its terminal status.
// It is a no-op when the record has already been evicted from the ring.
func (r *Recorder) Resolve(id string, status sponsorship.Status, digest string, feeCost uint64, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.records {
		if r.records[i].ID != id {
			continue
		}
		r.records[i].Status = status
		r.records[i].TxDigest = digest
		r.records[i].FeeCost = feeCost
		r.records[i].Error = errMsg
		return
	}
}

// List returns matching records, newest first.
func (r *Recorder) List(f Filter) []sponsorship.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sender := strings.ToLower(f.Sender)
	out := make([]sponsorship.Record, 0, len(r.records))
	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if sender != "" && !strings.Contains(rec.Sender, sender) {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		out = append(out, rec)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Since returns records with Seq strictly greater than seq, oldest
// first. The persistence sweep uses it as a cursor.
func (r *Recorder) Since(seq uint64) []sponsorship.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]sponsorship.Record, 0)
	for _, rec := range r.records {
		if rec.Seq > seq {
			out = append(out, rec)
		}
	}
	return out
}

// Stats computes the aggregates over current ring contents.
func (r *Recorder) Stats() sponsorship.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now().UTC()
	dayAgo := now.Add(-24 * time.Hour)
	y, m, d := now.Date()

	stats := sponsorship.Stats{Total: len(r.records)}
	bySender := make(map[string]int)
	for _, rec := range r.records {
		switch rec.Status {
		case sponsorship.StatusPending:
			stats.Pending++
		case sponsorship.StatusSuccess:
			stats.Success++
			stats.TotalFeeMist += rec.FeeCost
		case sponsorship.StatusFailed:
			stats.Failed++
		}
		if rec.Timestamp.After(dayAgo) {
			stats.Last24Hours++
		}
		ry, rm, rd := rec.Timestamp.Date()
		if ry == y && rm == m && rd == d {
			stats.Today++
		}
		if rec.Sender != "" {
			bySender[rec.Sender]++
		}
	}

	top := make([]sponsorship.SenderCount, 0, len(bySender))
	for sender, count := range bySender {
		top = append(top, sponsorship.SenderCount{Sender: sender, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Sender < top[j].Sender
	})
	if len(top) > topSendersLimit {
		top = top[:topSendersLimit]
	}
	stats.TopSenders = top
	return stats
}

// Len reports the number of records currently held.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
