package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTaskObject(t *testing.T) {
	msg, err := Classify([]byte(`{"task_id": 42}`))
	require.NoError(t, err)
	assert.Equal(t, KindTask, msg.Kind)
	assert.Equal(t, int64(42), msg.TaskID)
}

func TestClassifyAnalysisJobType(t *testing.T) {
	msg, err := Classify([]byte(`{"task_id": 7, "job_type": "ANALYSIS", "conference_id": "neurips-2026"}`))
	require.NoError(t, err)
	assert.Equal(t, KindTask, msg.Kind)
	assert.Equal(t, int64(7), msg.TaskID)
}

func TestClassifyReferenceOnly(t *testing.T) {
	msg, err := Classify([]byte(`{"task_id": 9, "job_type": "REFERENCE_ONLY", "parent_paper_id": 3}`))
	require.NoError(t, err)
	assert.Equal(t, KindReference, msg.Kind)
	assert.Equal(t, int64(9), msg.TaskID)
}

func TestClassifyLegacyBareInteger(t *testing.T) {
	msg, err := Classify([]byte("  42\n"))
	require.NoError(t, err)
	assert.Equal(t, KindTask, msg.Kind)
	assert.Equal(t, int64(42), msg.TaskID)
}

func TestClassifySystemDiagnosis(t *testing.T) {
	msg, err := Classify([]byte(`{"type": "SYSTEM_DIAGNOSIS"}`))
	require.NoError(t, err)
	assert.Equal(t, KindDiagnosis, msg.Kind)
}

func TestClassifyRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"not json", "hello there"},
		{"zero task id", `{"task_id": 0}`},
		{"negative task id", `{"task_id": -5}`},
		{"negative bare integer", "-3"},
		{"missing task id", `{"type": "something"}`},
		{"json array", `[1, 2, 3]`},
		{"unknown job type", `{"task_id": 4, "job_type": "BULK_IMPORT"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}
