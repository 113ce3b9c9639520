package record

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldCount is the number of comma-separated fields in one wire record.
const FieldCount = 7

// Field positions within a wire record.
const (
	FieldSlow = iota
	FieldExtended
	FieldSpeed
	FieldRPM
	FieldLoad
	FieldTemperature
	FieldFuel
)

var fieldNames = [FieldCount]string{
	"slow", "extended", "speed", "rpm", "load", "temperature", "fuel",
}

// ErrMalformedRecord matches every parse rejection via errors.Is.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError describes why a line was rejected.
// Field is -1 when the field count itself was wrong.
type MalformedRecordError struct {
	Line   string
	Fields int
	Field  int
	Err    error
}

func (e *MalformedRecordError) Error() string {
	if e.Field < 0 {
		return fmt.Sprintf("malformed record: got %d fields, want %d", e.Fields, FieldCount)
	}
	return fmt.Sprintf("malformed record: field %d (%s): %v", e.Field, fieldNames[e.Field], e.Err)
}

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// Flags are the link parameters the peer reports with every record.
type Flags struct {
	Slow     bool `json:"slow" cbor:"slow"`         // 250 kbps bus when set, 500 kbps otherwise
	Extended bool `json:"extended" cbor:"extended"` // 29-bit identifiers
}

// BitrateKbps returns the bus bitrate implied by the slow flag.
func (f Flags) BitrateKbps() int {
	if f.Slow {
		return 250
	}
	return 500
}

// FrameFormat returns "extended" or "standard".
func (f Flags) FrameFormat() string {
	if f.Extended {
		return "extended"
	}
	return "standard"
}

// Sample is one parsed telemetry record.
type Sample struct {
	Flags       Flags   `json:"flags" cbor:"flags"`
	Speed       float64 `json:"speed" cbor:"speed"`             // km/h
	RPM         float64 `json:"rpm" cbor:"rpm"`                 // rev/min
	Load        float64 `json:"load" cbor:"load"`               // %
	Temperature float64 `json:"temperature" cbor:"temperature"` // °C
	Fuel        float64 `json:"fuel" cbor:"fuel"`               // %
}

// Parse turns one wire line into a Sample. It never panics; every rejection
// is a *MalformedRecordError.
func Parse(line string) (Sample, error) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Split(line, ",")
	if len(parts) != FieldCount {
		return Sample{}, &MalformedRecordError{Line: line, Fields: len(parts), Field: -1}
	}

	var (
		s   Sample
		err error
	)
	if s.Flags.Slow, err = parseBool(parts[FieldSlow]); err != nil {
		return Sample{}, malformed(line, FieldSlow, err)
	}
	if s.Flags.Extended, err = parseBool(parts[FieldExtended]); err != nil {
		return Sample{}, malformed(line, FieldExtended, err)
	}

	dst := [...]*float64{&s.Speed, &s.RPM, &s.Load, &s.Temperature, &s.Fuel}
	for i, p := range dst {
		idx := FieldSpeed + i
		if *p, err = parseFloat(parts[idx]); err != nil {
			return Sample{}, malformed(line, idx, err)
		}
	}
	return s, nil
}

// Line renders the sample in wire form.
func (s Sample) Line() string {
	return strings.Join([]string{
		strconv.FormatBool(s.Flags.Slow),
		strconv.FormatBool(s.Flags.Extended),
		formatFloat(s.Speed),
		formatFloat(s.RPM),
		formatFloat(s.Load),
		formatFloat(s.Temperature),
		formatFloat(s.Fuel),
	}, ",")
}

func malformed(line string, field int, err error) error {
	return &MalformedRecordError{Line: line, Fields: FieldCount, Field: field, Err: err}
}

func parseBool(raw string) (bool, error) {
	v := strings.TrimSpace(raw)
	switch {
	case strings.EqualFold(v, "true"):
		return true, nil
	case strings.EqualFold(v, "false"):
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

func parseFloat(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return v, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
