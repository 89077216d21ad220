package upstream

import (
	"encoding/json"
	"fmt"

	"solar-dashboard/internal/telemetry"
)

// The logger endpoint changed shape over its lifetime. Shape A is an
// object with named string-array fields; shape B is a positional
// array-of-arrays. Both are detected here at the fetch boundary so shape
// knowledge never reaches the normalizer.

type shapeAPayload struct {
	First  []string `json:"first"`
	Second []string `json:"second"`

	KWHPositive      string `json:"kwh_positive"`
	KWHNegative      string `json:"kwh_negative"`
	LastShuntVoltage string `json:"last_shunt_voltage"`
}

type shapeBCounters struct {
	KWHPositive string `json:"kwh_positive"`
	KWHNegative string `json:"kwh_negative"`
	LastShuntV  string `json:"last_shunt_v"`
}

// DecodePayload resolves either payload shape into one RawRecord.
// Structurally invalid payloads (neither shape, missing sensor record)
// are errors and are treated like network failures by the caller.
func DecodePayload(body []byte) (telemetry.RawRecord, error) {
	var probe json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return telemetry.RawRecord{}, fmt.Errorf("upstream payload is not JSON: %w", err)
	}

	if len(probe) > 0 && probe[0] == '[' {
		return decodeShapeB(probe)
	}
	return decodeShapeA(probe)
}

func decodeShapeA(body []byte) (telemetry.RawRecord, error) {
	var payload shapeAPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return telemetry.RawRecord{}, fmt.Errorf("decode shape-A payload: %w", err)
	}
	if len(payload.First) == 0 {
		return telemetry.RawRecord{}, fmt.Errorf("shape-A payload has no sensor record")
	}
	return telemetry.RawRecord{
		Fields:         payload.First,
		KWHPositive:    payload.KWHPositive,
		KWHNegative:    payload.KWHNegative,
		LastShuntVolts: payload.LastShuntVoltage,
	}, nil
}

// Shape B indexes: [0] sensor records, [1] power records, [2] monthly
// records, [3] charge-counter object. Only [0] and [3] are consumed.
func decodeShapeB(body []byte) (telemetry.RawRecord, error) {
	var sections []json.RawMessage
	if err := json.Unmarshal(body, &sections); err != nil {
		return telemetry.RawRecord{}, fmt.Errorf("decode shape-B payload: %w", err)
	}
	if len(sections) < 4 {
		return telemetry.RawRecord{}, fmt.Errorf("shape-B payload has %d sections, want 4", len(sections))
	}

	fields, err := decodeSensorSection(sections[0])
	if err != nil {
		return telemetry.RawRecord{}, err
	}

	var counters shapeBCounters
	if err := json.Unmarshal(sections[3], &counters); err != nil {
		return telemetry.RawRecord{}, fmt.Errorf("decode shape-B counters: %w", err)
	}

	return telemetry.RawRecord{
		Fields:         fields,
		KWHPositive:    counters.KWHPositive,
		KWHNegative:    counters.KWHNegative,
		LastShuntVolts: counters.LastShuntV,
	}, nil
}

// decodeSensorSection accepts the sensor section as either a single
// record or a list of records, in which case the most recent (last) one
// wins.
func decodeSensorSection(section json.RawMessage) ([]string, error) {
	var record []string
	if err := json.Unmarshal(section, &record); err == nil {
		if len(record) == 0 {
			return nil, fmt.Errorf("shape-B sensor record is empty")
		}
		return record, nil
	}

	var records [][]string
	if err := json.Unmarshal(section, &records); err != nil {
		return nil, fmt.Errorf("decode shape-B sensor section: %w", err)
	}
	if len(records) == 0 || len(records[len(records)-1]) == 0 {
		return nil, fmt.Errorf("shape-B sensor section is empty")
	}
	return records[len(records)-1], nil
}
