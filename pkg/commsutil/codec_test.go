package commsutil

import (
	"encoding/json"
	"testing"
)

const codecTestPrefix = "commsutil:codec_test"

type envelope struct {
	ID        string                 `json:"id"`
	Method    string                 `json:"method"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    string
		wantErr bool
	}{
		{
			name:  "call envelope",
			input: envelope{ID: "c-1", Method: "logEvent", Arguments: map[string]interface{}{"name": "login"}},
			want:  `{"id":"c-1","method":"logEvent","arguments":{"name":"login"}}`,
		},
		{
			name:  "envelope without arguments",
			input: envelope{ID: "c-2", Method: "resetAnalyticsData"},
			want:  `{"id":"c-2","method":"resetAnalyticsData"}`,
		},
		{
			name:  "json.Number is written verbatim",
			input: map[string]interface{}{"milliseconds": json.Number("9007199254740993")},
			want:  `{"milliseconds":9007199254740993}`,
		},
		{
			name:  "null success value",
			input: nil,
			want:  "null",
		},
		{
			name:    "channel is not serializable",
			input:   make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePayload(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("%s - expected error but got nil", codecTestPrefix)
				}
				return
			}
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
			}
			if got := string(data); got != tt.want {
				t.Errorf("%s - EncodePayload() = %q, want %q", codecTestPrefix, got, tt.want)
			}
		})
	}
}

func TestDecodePayload_Envelope(t *testing.T) {
	var env envelope
	data := `{"id":"c-9","method":"setUserProperties","arguments":{"properties":{"plan":"pro","seats":3}}}`
	if err := DecodePayload([]byte(data), &env); err != nil {
		t.Fatalf("%s - decode failed: %v", codecTestPrefix, err)
	}
	if env.ID != "c-9" || env.Method != "setUserProperties" {
		t.Fatalf("%s - unexpected envelope %+v", codecTestPrefix, env)
	}
	props, ok := env.Arguments["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("%s - properties decoded as %T", codecTestPrefix, env.Arguments["properties"])
	}
	if props["plan"] != "pro" || props["seats"] != json.Number("3") {
		t.Errorf("%s - properties = %v", codecTestPrefix, props)
	}
}

func TestDecodePayload_Errors(t *testing.T) {
	for name, data := range map[string]string{
		"invalid json":   `{invalid}`,
		"empty data":     "",
		"truncated":      `{"id":"c-1","method":`,
		"wrong arg type": `{"id":"c-1","method":"logEvent","arguments":[1,2]}`,
	} {
		t.Run(name, func(t *testing.T) {
			var env envelope
			if err := DecodePayload([]byte(data), &env); err == nil {
				t.Errorf("%s - expected error for %q", codecTestPrefix, data)
			}
		})
	}
}

func TestDecodePayload_KeepsIntegerWidth(t *testing.T) {
	var decoded envelope
	err := DecodePayload([]byte(`{"arguments":{"small":7,"big":9007199254740993,"ratio":0.5}}`), &decoded)
	if err != nil {
		t.Fatalf("%s - decode failed: %v", codecTestPrefix, err)
	}

	for key, want := range map[string]string{"small": "7", "big": "9007199254740993", "ratio": "0.5"} {
		n, ok := decoded.Arguments[key].(json.Number)
		if !ok {
			t.Fatalf("%s - %s decoded as %T, want json.Number", codecTestPrefix, key, decoded.Arguments[key])
		}
		if n.String() != want {
			t.Errorf("%s - %s = %s, want %s", codecTestPrefix, key, n.String(), want)
		}
	}
}
