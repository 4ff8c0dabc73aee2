// Package byterange parses and validates single HTTP byte ranges.
//
// Only the forms "bytes=<start>-<end>" and "bytes=<start>-" are accepted.
// Suffix ranges, multiple ranges and other units are rejected rather than
// approximated, and out-of-bounds ranges are never clamped.
package byterange

import (
	"fmt"
	"strconv"
	"strings"
)

const unitPrefix = "bytes="

// Range is an inclusive byte interval with 0 <= Start <= End < size.
type Range struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by r.
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the Content-Range value of a 206 response.
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// Unsatisfied formats the Content-Range value of a 416 response.
func Unsatisfied(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// Header formats a request header value for r. An End below zero yields the
// open-ended form.
func (r Range) Header() string {
	if r.End < 0 {
		return fmt.Sprintf("%s%d-", unitPrefix, r.Start)
	}

	return fmt.Sprintf("%s%d-%d", unitPrefix, r.Start, r.End)
}

// Error describes why a header was rejected.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

func invalid(format string, args ...any) error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// Parse validates header against a resource of size bytes. An open end
// defaults to size-1.
func Parse(header string, size int64) (Range, error) {
	set, ok := strings.CutPrefix(strings.TrimSpace(header), unitPrefix)
	if !ok {
		return Range{}, invalid("unsupported range unit")
	}

	if strings.Contains(set, ",") {
		return Range{}, invalid("multiple ranges are not supported")
	}

	startStr, endStr, ok := strings.Cut(set, "-")
	if !ok {
		return Range{}, invalid("missing range separator")
	}

	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		return Range{}, invalid("suffix ranges are not supported")
	}

	start, err := parseOffset(startStr)
	if err != nil {
		return Range{}, invalid("invalid start %q", startStr)
	}

	end := size - 1

	if endStr != "" {
		end, err = parseOffset(endStr)
		if err != nil {
			return Range{}, invalid("invalid end %q", endStr)
		}
	}

	switch {
	case start >= size:
		return Range{}, invalid("start %d beyond end of file", start)
	case end < start:
		return Range{}, invalid("end %d before start %d", end, start)
	case end >= size:
		return Range{}, invalid("end %d beyond end of file", end)
	}

	return Range{Start: start, End: end}, nil
}

func parseOffset(s string) (int64, error) {
	// ParseInt would accept a leading sign.
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, strconv.ErrSyntax
		}
	}

	return strconv.ParseInt(s, 10, 64)
}

// ParseContentRange reads the "bytes <start>-<end>/<size>" value of a 206 response.
func ParseContentRange(value string) (Range, int64, error) {
	set, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return Range{}, 0, invalid("unsupported content range %q", value)
	}

	span, sizeStr, ok := strings.Cut(set, "/")
	if !ok {
		return Range{}, 0, invalid("missing size in content range %q", value)
	}

	startStr, endStr, ok := strings.Cut(span, "-")
	if !ok {
		return Range{}, 0, invalid("malformed content range %q", value)
	}

	start, err := parseOffset(startStr)
	if err != nil {
		return Range{}, 0, invalid("malformed content range %q", value)
	}

	end, err := parseOffset(endStr)
	if err != nil {
		return Range{}, 0, invalid("malformed content range %q", value)
	}

	size, err := parseOffset(sizeStr)
	if err != nil {
		return Range{}, 0, invalid("malformed content range %q", value)
	}

	if end < start || end >= size {
		return Range{}, 0, invalid("inconsistent content range %q", value)
	}

	return Range{Start: start, End: end}, size, nil
}

// ParseUnsatisfied reads the size from the "bytes */<size>" value of a 416 response.
func ParseUnsatisfied(value string) (int64, error) {
	sizeStr, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes */")
	if !ok {
		return 0, invalid("unsupported content range %q", value)
	}

	size, err := parseOffset(sizeStr)
	if err != nil {
		return 0, invalid("malformed content range %q", value)
	}

	return size, nil
}
