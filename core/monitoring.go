package core

import (
	"log"

	"github.com/abema/netwatch/internal/thread"
)

const internalMonitoringReport = "InternalMonitoring"

// Monitoring is the boundary around agent code running on behalf of the
// monitored application. Panics raised inside it are reported and never
// reach the application.
// A nil *Monitoring is usable and reports through the standard logger.
type Monitoring struct {
	onReport OnReportHandler
}

func NewMonitoring(onReport OnReportHandler) *Monitoring {
	return &Monitoring{onReport: onReport}
}

// Run executes f and reports whether it returned without panicking.
func (m *Monitoring) Run(f func()) bool {
	return thread.Recover(f, m.reportPanic)
}

// Guard returns f wrapped by Run.
func (m *Monitoring) Guard(f func()) func() {
	return func() {
		m.Run(f)
	}
}

func (m *Monitoring) AddMessage(message string) {
	m.report(&Report{
		Name:     internalMonitoringReport,
		Severity: Warn,
		Message:  message,
	})
}

func (m *Monitoring) reportPanic(err error) {
	m.report(&Report{
		Name:     internalMonitoringReport,
		Severity: Error,
		Message:  "unexpected panic",
		Values:   Values{"error": err},
	})
}

func (m *Monitoring) report(report *Report) {
	if m == nil || m.onReport == nil {
		log.Printf("%s: %s: %s %s", report.Severity, report.Name, report.Message, report.Values)
		return
	}
	thread.Recover(func() {
		m.onReport(Reports{report})
	}, func(err error) {
		log.Printf("ERROR: failed to report: %s", err)
	})
}
