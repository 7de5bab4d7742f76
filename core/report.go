package core

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
)

type Severity int

const (
	Info Severity = iota
	Warn
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "INFO"
	case Warn:
		return "WARNING"
	case Error:
		return "ERROR"
	}
	return ""
}

func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case Info.String(), "info":
		*s = Info
	case Warn.String(), "WARN", "warn":
		*s = Warn
	case Error.String(), "error":
		*s = Error
	default:
		return errors.New("unknown severity")
	}
	return nil
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s Severity) WorseThan(o Severity) bool {
	return s > o
}

type Values map[string]interface{}

func (values Values) Keys() []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (values Values) String() string {
	buf := bytes.NewBuffer(nil)
	for _, key := range values.Keys() {
		if buf.Len() != 0 {
			buf.WriteString(" ")
		}
		fmt.Fprintf(buf, "%s=[%v]", key, values[key])
	}
	return buf.String()
}

// Report is a diagnostic emitted by the agent about itself or about the
// requests it observes.
type Report struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Values   Values   `json:"values,omitempty"`
}

type Reports []*Report

func (reports Reports) WorstSeverity() Severity {
	var worst Severity
	for _, report := range reports {
		if report.Severity.WorseThan(worst) {
			worst = report.Severity
		}
	}
	return worst
}

// AtLeast returns the reports whose severity is s or worse.
func (reports Reports) AtLeast(s Severity) Reports {
	filtered := make(Reports, 0, len(reports))
	for _, report := range reports {
		if !s.WorseThan(report.Severity) {
			filtered = append(filtered, report)
		}
	}
	return filtered
}
