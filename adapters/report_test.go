package adapters

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/abema/netwatch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlarm(t *testing.T) {
	var a int
	var r int
	handler := Alarm(&AlarmConfig{
		OnAlarm: func(reports core.Reports) {
			a++
		},
		OnRecover: func(reports core.Reports) {
			r++
		},
		Window:                       5,
		AlarmIfErrorGreaterThanEqual: 3,
		RecoverIfOKGreaterThanEqual:  4,
	})
	handler(core.Reports{{Name: "test", Severity: core.Error}})
	handler(core.Reports{{Name: "test", Severity: core.Info}})
	handler(core.Reports{{Name: "test", Severity: core.Info}})
	handler(core.Reports{{Name: "test", Severity: core.Error}})
	handler(core.Reports{{Name: "test", Severity: core.Info}})
	handler(core.Reports{{Name: "test", Severity: core.Error}})
	require.Equal(t, 0, a)
	handler(core.Reports{{Name: "test", Severity: core.Error}})
	require.Equal(t, 1, a)
	handler(core.Reports{{Name: "test", Severity: core.Warn}})
	handler(core.Reports{{Name: "test", Severity: core.Info}})
	handler(core.Reports{{Name: "test", Severity: core.Info}})
	require.Equal(t, 0, r)
	handler(core.Reports{{Name: "test", Severity: core.Info}})
	require.Equal(t, 1, r)
	require.Equal(t, 1, a)
	handler(core.Reports{{Name: "test", Severity: core.Info}})
	require.Equal(t, 1, r)
	require.Equal(t, 1, a)
}

func testReports() core.Reports {
	return core.Reports{
		{
			Name: "r1", Severity: core.Info, Message: "Report 1", Values: core.Values{
				"int": 1, "string": "foo",
			},
		}, {
			Name: "r2", Severity: core.Warn, Message: "Report 2", Values: core.Values{
				"int": 2, "string": "bar",
			},
		}, {
			Name: "r3", Severity: core.Error, Message: "Report 3", Values: core.Values{
				"int": 3, "string": "baz",
			},
		},
	}
}

func TestReportLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		w := bytes.NewBuffer(nil)
		ReportLogger(&ReportLogConfig{JSON: true}, w)(testReports())
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Bytes(), &out))
		assert.Len(t, out["reports"], 3)
		r1 := out["reports"].([]interface{})[0].(map[string]interface{})
		assert.Equal(t, map[string]interface{}{
			"name":     "r1",
			"severity": "INFO",
			"message":  "Report 1",
			"values":   map[string]interface{}{"int": float64(1), "string": "foo"},
		}, r1)
		assert.Equal(t, "ERROR", out["severity"])
	})

	t.Run("severity", func(t *testing.T) {
		w := bytes.NewBuffer(nil)
		logger := ReportLogger(&ReportLogConfig{Severity: core.Error}, w)
		logger(testReports()[:2])
		assert.Empty(t, w.String())
		logger(testReports())
		assert.Equal(t, "ERROR: r3: Report 3: int=[3] string=[baz]\n", w.String())
	})
}

func TestFileReportLogger(t *testing.T) {
	name := filepath.Join(t.TempDir(), "logs", "test.log")
	logger := FileReportLogger(&ReportLogConfig{Severity: core.Warn}, name)
	logger(testReports())
	logger(testReports()[1:2])
	b, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "WARNING: r2: Report 2: int=[2] string=[bar]\n"+
		"ERROR: r3: Report 3: int=[3] string=[baz]\n"+
		"WARNING: r2: Report 2: int=[2] string=[bar]\n", string(b))
}
