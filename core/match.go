package core

import (
	"github.com/abema/netwatch/host"
)

// One nanosecond, in milliseconds.
const timingEpsilon = 1e-6

// TimingStore is the part of host.Performance the correlator reads.
type TimingStore interface {
	GetEntriesByName(name string) []*host.TimingRecord
}

// MatchRequestTiming finds the timing record measuring req among the records
// named after its URL. It returns nil whenever the choice is ambiguous.
//
// A record matches when it lies within the request's interval. Two matching
// records are accepted only when the second starts after the first ends,
// which is a preflight followed by the actual transfer.
func MatchRequestTiming(store TimingStore, req *RequestCompleteEvent) *host.TimingRecord {
	if store == nil {
		return nil
	}
	end := req.StartTime + req.Duration
	var candidates []*host.TimingRecord
	for _, rec := range store.GetEntriesByName(req.URL) {
		if rec.StartTime >= req.StartTime-timingEpsilon &&
			rec.StartTime+rec.Duration <= end+timingEpsilon {
			candidates = append(candidates, rec)
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0]
	case 2:
		first, second := candidates[0], candidates[1]
		if first.StartTime+first.Duration <= second.StartTime+timingEpsilon {
			return second
		}
	}
	return nil
}
