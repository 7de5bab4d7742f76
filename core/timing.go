package core

import (
	"time"

	"github.com/abema/netwatch/host"
)

// MsToNs converts a millisecond timestamp or interval to a time.Duration.
func MsToNs(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

type Timing struct {
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
}

// ResourceTimingDetails is the phase breakdown of one transfer. Starts are
// relative to the start of the transfer. Optional phases are nil when they
// did not happen.
type ResourceTimingDetails struct {
	Redirect  *Timing `json:"redirect,omitempty"`
	DNS       *Timing `json:"dns,omitempty"`
	Connect   *Timing `json:"connect,omitempty"`
	SSL       *Timing `json:"ssl,omitempty"`
	FirstByte Timing  `json:"firstByte"`
	Download  Timing  `json:"download"`
}

// ComputePerformanceResourceDuration returns the duration of rec, working
// around records whose duration is reported as zero although the transfer
// took time.
func ComputePerformanceResourceDuration(rec *host.TimingRecord) time.Duration {
	if rec.Duration == 0 && rec.StartTime < rec.ResponseEnd {
		return MsToNs(rec.ResponseEnd - rec.StartTime)
	}
	return MsToNs(rec.Duration)
}

// ComputePerformanceResourceDetails returns the phase breakdown of rec, or nil
// when the timestamps of rec are not ordered, which is the case for
// restricted cross-origin records.
func ComputePerformanceResourceDetails(rec *host.TimingRecord) *ResourceTimingDetails {
	if !areInOrder(
		rec.StartTime,
		rec.FetchStart,
		rec.DomainLookupStart,
		rec.DomainLookupEnd,
		rec.ConnectStart,
		rec.ConnectEnd,
		rec.RequestStart,
		rec.ResponseStart,
		rec.ResponseEnd,
	) {
		return nil
	}

	details := &ResourceTimingDetails{
		FirstByte: formatTiming(rec.StartTime, rec.RequestStart, rec.ResponseStart),
		Download:  formatTiming(rec.StartTime, rec.ResponseStart, rec.ResponseEnd),
	}
	if rec.ConnectEnd != rec.FetchStart {
		connect := formatTiming(rec.StartTime, rec.ConnectStart, rec.ConnectEnd)
		details.Connect = &connect
		if areInOrder(rec.ConnectStart, rec.SecureConnectionStart, rec.ConnectEnd) {
			ssl := formatTiming(rec.StartTime, rec.SecureConnectionStart, rec.ConnectEnd)
			details.SSL = &ssl
		}
	}
	if rec.DomainLookupEnd != rec.FetchStart {
		dns := formatTiming(rec.StartTime, rec.DomainLookupStart, rec.DomainLookupEnd)
		details.DNS = &dns
	}
	if hasRedirection(rec) {
		redirectStart, redirectEnd := correctedRedirect(rec)
		if areInOrder(rec.StartTime, redirectStart, redirectEnd, rec.FetchStart) {
			redirect := formatTiming(rec.StartTime, redirectStart, redirectEnd)
			details.Redirect = &redirect
		}
	}
	return details
}

// ComputeSize returns the decoded body size of rec. ok is false when no
// request was actually made, in which case the size is unknown rather than 0.
func ComputeSize(rec *host.TimingRecord) (size int64, ok bool) {
	if rec.StartTime < rec.ResponseStart {
		return rec.DecodedBodySize, true
	}
	return 0, false
}

func hasRedirection(rec *host.TimingRecord) bool {
	return rec.FetchStart != rec.StartTime
}

// correctedRedirect clamps redirect timestamps reported before the start of
// the transfer. A missing redirect end (cross-origin redirect) is moved onto
// fetchStart.
func correctedRedirect(rec *host.TimingRecord) (start, end float64) {
	start, end = rec.RedirectStart, rec.RedirectEnd
	if start < rec.StartTime {
		start = rec.StartTime
	}
	if end < rec.StartTime {
		end = rec.FetchStart
	}
	return start, end
}

func areInOrder(numbers ...float64) bool {
	for i := 1; i < len(numbers); i++ {
		if numbers[i-1] > numbers[i] {
			return false
		}
	}
	return true
}

func formatTiming(origin, start, end float64) Timing {
	return Timing{
		Start:    MsToNs(start - origin),
		Duration: MsToNs(end - start),
	}
}
