package upstream

import (
	"testing"
)

func TestDecodePayload(t *testing.T) {
	t.Run("decodes shape-A object payload", func(t *testing.T) {
		body := []byte(`{
			"first": ["2025-01-01","12:00:00","12.30","40.00","0","1.00","-1.20","10","MPPT","","0"],
			"second": ["40.00","30.75"],
			"kwh_positive": "1.25",
			"kwh_negative": "-0.75",
			"last_shunt_voltage": "-2.5"
		}`)

		raw, err := DecodePayload(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(raw.Fields) != 11 {
			t.Errorf("expected 11 fields, got %d", len(raw.Fields))
		}
		if raw.Fields[2] != "12.30" {
			t.Errorf("expected battery voltage field 12.30, got %s", raw.Fields[2])
		}
		if raw.KWHPositive != "1.25" || raw.KWHNegative != "-0.75" || raw.LastShuntVolts != "-2.5" {
			t.Errorf("unexpected counters: %+v", raw)
		}
	})

	t.Run("decodes shape-B positional payload", func(t *testing.T) {
		body := []byte(`[
			["2025-01-01","12:00:00","12.30","40.00","0","1.00","-1.20","10","MPPT","","0"],
			["40.00","30.75"],
			["2025-01","37.5"],
			{"kwh_positive":"1.25","kwh_negative":"-0.75","last_shunt_v":"-2.5"}
		]`)

		raw, err := DecodePayload(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if raw.Fields[3] != "40.00" {
			t.Errorf("expected solar voltage field 40.00, got %s", raw.Fields[3])
		}
		if raw.LastShuntVolts != "-2.5" {
			t.Errorf("expected shunt -2.5, got %s", raw.LastShuntVolts)
		}
	})

	t.Run("shape-B sensor section may hold multiple records", func(t *testing.T) {
		body := []byte(`[
			[
				["2025-01-01","11:45:00","12.10","38.00","0","0.90","-1.10","10","MPPT","","0"],
				["2025-01-01","12:00:00","12.30","40.00","0","1.00","-1.20","10","MPPT","","0"]
			],
			[],
			[],
			{"kwh_positive":"1.25","kwh_negative":"-0.75","last_shunt_v":"-2.5"}
		]`)

		raw, err := DecodePayload(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// Most recent record wins
		if raw.Fields[1] != "12:00:00" {
			t.Errorf("expected latest record, got time field %s", raw.Fields[1])
		}
	})

	t.Run("rejects non-JSON", func(t *testing.T) {
		if _, err := DecodePayload([]byte("<html>offline</html>")); err == nil {
			t.Error("expected error for non-JSON body")
		}
	})

	t.Run("rejects shape-A without sensor record", func(t *testing.T) {
		if _, err := DecodePayload([]byte(`{"kwh_positive":"1"}`)); err == nil {
			t.Error("expected error for missing sensor record")
		}
	})

	t.Run("rejects shape-B with too few sections", func(t *testing.T) {
		if _, err := DecodePayload([]byte(`[["a"],["b"]]`)); err == nil {
			t.Error("expected error for truncated payload")
		}
	})

	t.Run("rejects shape-B with empty sensor section", func(t *testing.T) {
		if _, err := DecodePayload([]byte(`[[],[],[],{}]`)); err == nil {
			t.Error("expected error for empty sensor section")
		}
	})
}
