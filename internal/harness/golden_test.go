package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "scenario name must match its file name")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestScenarios_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "auto_solve_and_editor.yaml"))
	require.NoError(t, err)

	var snapshots [][]byte
	for i := 0; i < 3; i++ {
		result, err := RunWithGolden(t, scenario)
		require.NoError(t, err)
		data, err := MarshalSnapshot(scenario.Name, result)
		require.NoError(t, err)
		snapshots = append(snapshots, data)
	}
	assert.Equal(t, snapshots[0], snapshots[1])
	assert.Equal(t, snapshots[1], snapshots[2])
}

func TestMarshalSnapshot(t *testing.T) {
	flushed := 2
	result := NewResult()
	result.Trace = append(result.Trace,
		TraceEvent{Step: 1, Kind: KindOccurred, OCID: 9, Outcome: "opened", EventID: 4},
		TraceEvent{Step: 2, Kind: KindFlush, OffsetMS: 10, Flushed: &flushed},
	)
	result.AddError("ignored in snapshots")

	data, err := MarshalSnapshot("snap", result)
	require.NoError(t, err)

	want := `{
  "scenario": "snap",
  "trace": [
    {
      "step": 1,
      "kind": "occurred",
      "offset_ms": 0,
      "ocid": 9,
      "outcome": "opened",
      "event_id": 4
    },
    {
      "step": 2,
      "kind": "flush",
      "offset_ms": 10,
      "flushed": 2
    }
  ],
  "tasks": []
}
`
	assert.Equal(t, want, string(data))
}
