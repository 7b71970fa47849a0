package workload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbench/coldbench/pkg/benchmark"
)

func TestPayload(t *testing.T) {
	tests := []struct {
		name         string
		workloadType string
		want         map[string]any
	}{
		{
			name:         "cpu-intensive carries the iteration count",
			workloadType: benchmark.WorkloadCPUIntensive,
			want:         map[string]any{"iterations": float64(CPUIntensiveIterations)},
		},
		{
			name:         "memory-intensive takes no parameters",
			workloadType: benchmark.WorkloadMemoryIntensive,
			want:         map[string]any{},
		},
		{
			name:         "light takes no parameters",
			workloadType: benchmark.WorkloadLight,
			want:         map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Payload(tt.workloadType)
			require.NoError(t, err)

			var got map[string]any
			require.NoError(t, json.Unmarshal(payload, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeResponse(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"success":true,"workloadType":"cpu-intensive","iterations":500000,"resultHash":"ab"}`))

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "cpu-intensive", resp.WorkloadType)
	assert.Empty(t, resp.Error)
}

func TestDecodeResponse_WorkloadFailure(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"success":false,"workloadType":"light","error":"iterations must be > 0"}`))

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "iterations must be > 0", resp.Error)
}

func TestDecodeResponse_NotJSON(t *testing.T) {
	resp, err := DecodeResponse([]byte("not json"))

	assert.Nil(t, resp)
	assert.Error(t, err)
}

func TestDecodeErrorDocument(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "typed error document",
			body: `{"errorMessage":"task timed out after 3.00 seconds","errorType":"TimeoutError"}`,
			want: "TimeoutError: task timed out after 3.00 seconds",
		},
		{
			name: "message only",
			body: `{"errorMessage":"out of memory"}`,
			want: "out of memory",
		},
		{
			name: "unrecognized shape falls back to the raw body",
			body: `{"status":"broken"}`,
			want: `{"status":"broken"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeErrorDocument([]byte(tt.body)))
		})
	}
}
