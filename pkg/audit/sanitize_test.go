package audit

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSanitizeDropsKeyAdjacentFields(t *testing.T) {
	details := map[string]interface{}{
		"action":      "swap",
		"secretKey":   "must-not-persist",
		"private_key": "must-not-persist",
		"nested": map[string]interface{}{
			"seed":   "must-not-persist",
			"amount": "1000",
		},
		"list": []interface{}{
			map[string]interface{}{"keyPair": "x", "ok": true},
			"plain string",
		},
	}

	clean := Sanitize(details)

	if _, ok := clean["secretKey"]; ok {
		t.Error("secretKey survived sanitization")
	}
	if _, ok := clean["private_key"]; ok {
		t.Error("private_key survived sanitization")
	}
	nested := clean["nested"].(map[string]interface{})
	if _, ok := nested["seed"]; ok {
		t.Error("nested seed survived sanitization")
	}
	if nested["amount"] != "1000" {
		t.Errorf("nested amount = %v, want passthrough", nested["amount"])
	}
	elem := clean["list"].([]interface{})[0].(map[string]interface{})
	if _, ok := elem["keyPair"]; ok {
		t.Error("keyPair inside array element survived sanitization")
	}
	if elem["ok"] != true {
		t.Errorf("ok = %v, want passthrough", elem["ok"])
	}
}

func TestSanitizeDoesNotMutateInput(t *testing.T) {
	details := map[string]interface{}{
		"secretKey": "x",
		"nested":    map[string]interface{}{"mnemonic": "y"},
	}
	want := map[string]interface{}{
		"secretKey": "x",
		"nested":    map[string]interface{}{"mnemonic": "y"},
	}

	_ = Sanitize(details)

	if !reflect.DeepEqual(details, want) {
		t.Errorf("input tree mutated: %v", details)
	}
}

func TestAssertNoKeyMaterial(t *testing.T) {
	tests := []struct {
		serialized string
		wantErr    bool
	}{
		{`{"action":"swap","amount":"1000"}`, false},
		{`{"secretKey":"x"}`, true},
		{`{"SECRET_KEY":"x"}`, true},
		{`{"note":"the KeyPair was here"}`, true},
		{`{"note":"a seed value"}`, true},
		{`{"wallet_pk":"9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"}`, false},
	}
	for _, tt := range tests {
		err := AssertNoKeyMaterial(tt.serialized)
		if (err != nil) != tt.wantErr {
			t.Errorf("AssertNoKeyMaterial(%q) error = %v, wantErr %v", tt.serialized, err, tt.wantErr)
		}
	}
}

func TestSanitizeParamsStringifiesBigInts(t *testing.T) {
	params := map[string]interface{}{
		"amount_in": uint64(9_500_000_000),
		"slot":      int64(-1),
		"name":      "dca",
	}
	out := sanitizeParams(params)
	if out["amount_in"] != "9500000000" {
		t.Errorf("amount_in = %v, want stringified", out["amount_in"])
	}
	if out["slot"] != "-1" {
		t.Errorf("slot = %v, want stringified", out["slot"])
	}
	if _, err := json.Marshal(out); err != nil {
		t.Errorf("sanitized params should serialize: %v", err)
	}
}
