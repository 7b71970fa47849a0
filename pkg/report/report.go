// Package report extracts timing and memory fields from the execution
// report line the platform appends to a captured log tail. Parsing is pure
// text matching with no network or storage dependency.
package report

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

const reasonNoReportLine = "no report line"

// Field patterns are matched against the report line only, first match
// wins. Runtimes add extra fields to the line; anything not matched here
// is ignored.
var (
	reportLinePattern = regexp.MustCompile(`REPORT RequestId:\s+([a-f0-9-]+).*`)
	durationPattern   = regexp.MustCompile(`Duration:\s+([\d.]+)\s+ms`)
	billedPattern     = regexp.MustCompile(`Billed Duration:\s+(\d+)\s+ms`)
	memoryPattern     = regexp.MustCompile(`Max Memory Used:\s+(\d+)\s+MB`)
	initPattern       = regexp.MustCompile(`Init Duration:\s+([\d.]+)\s+ms`)
)

// Report holds the fields extracted from one report line. InitDurationMs
// is set only when the platform initialized a fresh execution environment
// for the invocation.
type Report struct {
	RequestID        string
	DurationMs       float64
	BilledDurationMs int64
	MaxMemoryUsedMB  int64
	InitDurationMs   *float64
}

// Cold reports whether the line carried an init duration.
func (r *Report) Cold() bool {
	return r.InitDurationMs != nil
}

// ParseError describes why a log tail yielded no usable report.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parsing report: " + e.Reason
}

// IsParseError reports whether err is a report parse failure.
func IsParseError(err error) bool {
	var pe *ParseError

	return errors.As(err, &pe)
}

// IsNoReportLine reports whether err indicates the log tail contained no
// report line at all. The platform's tail-size ceiling can push the line
// out entirely, which is a different condition than a malformed line.
func IsNoReportLine(err error) bool {
	var pe *ParseError
	if !errors.As(err, &pe) {
		return false
	}

	return pe.Reason == reasonNoReportLine
}

// Parse locates the report line in decoded log text and extracts its
// fields. Duration, billed duration and max memory used are required; a
// missing line or a missing required field yields a *ParseError, never a
// partial Report. Init duration is optional and absent on warm
// invocations.
func Parse(logText string) (*Report, error) {
	match := reportLinePattern.FindStringSubmatch(logText)
	if match == nil {
		return nil, &ParseError{Reason: reasonNoReportLine}
	}

	line := match[0]
	rep := &Report{RequestID: match[1]}

	duration, err := requiredFloat(line, durationPattern, "duration")
	if err != nil {
		return nil, err
	}

	rep.DurationMs = duration

	billed, err := requiredInt(line, billedPattern, "billed duration")
	if err != nil {
		return nil, err
	}

	rep.BilledDurationMs = billed

	memory, err := requiredInt(line, memoryPattern, "max memory used")
	if err != nil {
		return nil, err
	}

	rep.MaxMemoryUsedMB = memory

	if initMatch := initPattern.FindStringSubmatch(line); initMatch != nil {
		init, err := strconv.ParseFloat(initMatch[1], 64)
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("malformed init duration %q", initMatch[1])}
		}

		rep.InitDurationMs = &init
	}

	return rep, nil
}

func requiredFloat(line string, pattern *regexp.Regexp, field string) (float64, error) {
	match := pattern.FindStringSubmatch(line)
	if match == nil {
		return 0, &ParseError{Reason: "report line missing " + field}
	}

	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, &ParseError{Reason: fmt.Sprintf("malformed %s %q", field, match[1])}
	}

	return v, nil
}

func requiredInt(line string, pattern *regexp.Regexp, field string) (int64, error) {
	match := pattern.FindStringSubmatch(line)
	if match == nil {
		return 0, &ParseError{Reason: "report line missing " + field}
	}

	v, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, &ParseError{Reason: fmt.Sprintf("malformed %s %q", field, match[1])}
	}

	return v, nil
}
