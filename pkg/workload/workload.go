// Package workload builds invocation payloads for the deployed workload
// functions and decodes their responses. Every workload returns a flat
// JSON document with a success flag and ignores unrecognized request keys.
package workload

import (
	"encoding/json"
	"fmt"

	"github.com/coldbench/coldbench/pkg/benchmark"
)

// CPUIntensiveIterations is the SHA-256 chain length requested from the
// cpu-intensive workload. Fixed across runs so results stay comparable.
const CPUIntensiveIterations = 500_000

// Response is the discriminated result document every workload returns.
// Workload-specific extras are carried in the same document and ignored
// here.
type Response struct {
	Success      bool   `json:"success"`
	WorkloadType string `json:"workloadType"`
	Error        string `json:"error,omitempty"`
}

// Payload returns the request body for a workload type. The memory
// intensive and light workloads take no parameters, so anything but
// cpu-intensive gets an empty document.
func Payload(workloadType string) ([]byte, error) {
	body := map[string]any{}

	if workloadType == benchmark.WorkloadCPUIntensive {
		body["iterations"] = CPUIntensiveIterations
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling workload payload: %w", err)
	}

	return payload, nil
}

// DecodeResponse parses a workload response body. Unknown fields are
// ignored. A body that is not a JSON document is an error; a document
// without a success field decodes as a failed response.
func DecodeResponse(body []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding workload response: %w", err)
	}

	return &resp, nil
}

// DecodeErrorDocument extracts the message from a platform error document,
// the body shape returned when the function itself raised. Returns the
// raw body when the shape is unrecognized.
func DecodeErrorDocument(body []byte) string {
	var doc struct {
		ErrorMessage string `json:"errorMessage"`
		ErrorType    string `json:"errorType"`
	}

	if err := json.Unmarshal(body, &doc); err != nil || doc.ErrorMessage == "" {
		return string(body)
	}

	if doc.ErrorType != "" {
		return doc.ErrorType + ": " + doc.ErrorMessage
	}

	return doc.ErrorMessage
}
