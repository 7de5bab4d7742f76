package host

import (
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const DefaultTimingRetention = 2 * time.Minute

// Performance is the window's store of timing records.
// Records are only ever appended; they are dropped once the retention
// period has passed without a new record for the same name.
type Performance struct {
	clock     Clock
	entries   *cache.Cache
	mutex     sync.Mutex
	observers []func(rec *TimingRecord)
}

func NewPerformance(clock Clock, retention time.Duration) *Performance {
	cleanup := retention
	if retention <= 0 {
		retention = cache.NoExpiration
		cleanup = 0
	}
	return &Performance{
		clock:   clock,
		entries: cache.New(retention, cleanup),
	}
}

func (p *Performance) Now() float64 {
	return p.clock.Now()
}

// Add appends rec and notifies observers.
func (p *Performance) Add(rec *TimingRecord) {
	p.mutex.Lock()
	var list []*TimingRecord
	if v, ok := p.entries.Get(rec.Name); ok {
		list = v.([]*TimingRecord)
	}
	list = append(list[:len(list):len(list)], rec)
	p.entries.SetDefault(rec.Name, list)
	observers := p.observers
	p.mutex.Unlock()

	for _, observe := range observers {
		observe(rec)
	}
}

// GetEntriesByName returns the records named name ordered by start time.
func (p *Performance) GetEntriesByName(name string) []*TimingRecord {
	v, ok := p.entries.Get(name)
	if !ok {
		return nil
	}
	list := v.([]*TimingRecord)
	entries := make([]*TimingRecord, len(list))
	copy(entries, list)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartTime < entries[j].StartTime
	})
	return entries
}

// Observe registers fn to be called with every record added from now on.
func (p *Performance) Observe(fn func(rec *TimingRecord)) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	observers := make([]func(*TimingRecord), len(p.observers), len(p.observers)+1)
	copy(observers, p.observers)
	p.observers = append(observers, fn)
}

func (p *Performance) Clear() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.entries.Flush()
}
