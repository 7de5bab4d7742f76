package adapters

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"github.com/abema/netwatch/core"
	"github.com/abema/netwatch/internal/file"
)

type AlarmConfig struct {
	OnAlarm   core.OnReportHandler
	OnRecover core.OnReportHandler
	// Window is the number of latest report batches taken into account.
	Window                       int
	AlarmIfErrorGreaterThanEqual int
	RecoverIfOKGreaterThanEqual  int
}

// Alarm calls OnAlarm when errors pile up in the latest report batches and
// OnRecover once they are gone. The returned handler is thread-safe.
func Alarm(config *AlarmConfig) core.OnReportHandler {
	var mutex sync.Mutex
	history := make([]core.Severity, 0)
	var alarm bool
	return func(reports core.Reports) {
		mutex.Lock()
		defer mutex.Unlock()
		history = append(history, reports.WorstSeverity())
		if len(history) > config.Window {
			history = history[1:]
		}
		var okCnt int
		var errCnt int
		for _, hist := range history {
			if hist == core.Error {
				errCnt++
			} else {
				okCnt++
			}
		}
		if errCnt >= config.AlarmIfErrorGreaterThanEqual {
			if !alarm {
				config.OnAlarm(reports)
				alarm = true
			}
		} else if okCnt >= config.RecoverIfOKGreaterThanEqual {
			if alarm {
				config.OnRecover(reports)
				alarm = false
			}
		}
	}
}

type ReportLogConfig struct {
	// Flag is log flag defined standard log package.
	// When JSON option is true, this option is ignored.
	Flag     int
	JSON     bool
	Severity core.Severity
}

func ReportLogger(config *ReportLogConfig, w io.Writer) core.OnReportHandler {
	var mutex sync.Mutex
	return func(reports core.Reports) {
		mutex.Lock()
		defer mutex.Unlock()
		writeReport(config, w, reports)
	}
}

func FileReportLogger(config *ReportLogConfig, name string) core.OnReportHandler {
	var mutex sync.Mutex
	return func(reports core.Reports) {
		mutex.Lock()
		defer mutex.Unlock()
		file, err := file.Append(name)
		if err != nil {
			log.Printf("ERROR: failed to open log file: %s: %s", name, err)
			return
		}
		defer file.Close()
		writeReport(config, file, reports)
	}
}

func writeReport(config *ReportLogConfig, w io.Writer, reports core.Reports) {
	reports = reports.AtLeast(config.Severity)
	if len(reports) == 0 {
		return
	}
	if config.JSON {
		writeReportJSON(w, reports)
	} else {
		writeReportDefault(config, w, reports)
	}
}

func writeReportDefault(config *ReportLogConfig, w io.Writer, reports core.Reports) {
	logger := log.New(w, "", config.Flag)
	for _, report := range reports {
		logger.Printf("%s: %s: %s: %s", report.Severity, report.Name, report.Message, report.Values)
	}
}

func writeReportJSON(w io.Writer, reports core.Reports) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"reports":  reports,
		"severity": reports.WorstSeverity().String(),
		"time":     time.Now().Format(time.RFC3339),
	})
}
