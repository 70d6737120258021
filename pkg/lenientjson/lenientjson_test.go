package lenientjson

import (
	"reflect"
	"testing"
)

type expansion struct {
	Intent     string   `json:"search_intent"`
	Categories []string `json:"product_categories"`
}

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    expansion
		wantErr bool
	}{
		{
			name:  "clean json",
			input: `{"search_intent": "gifts", "product_categories": ["jewelry"]}`,
			want:  expansion{Intent: "gifts", Categories: []string{"jewelry"}},
		},
		{
			name:  "fenced",
			input: "```json\n{\"search_intent\": \"gifts\", \"product_categories\": [\"jewelry\"]}\n```",
			want:  expansion{Intent: "gifts", Categories: []string{"jewelry"}},
		},
		{
			name:  "surrounding prose",
			input: `Sure! Here is the JSON you asked for: {"search_intent": "gifts", "product_categories": []} Hope that helps.`,
			want:  expansion{Intent: "gifts", Categories: []string{}},
		},
		{
			name:  "trailing comma in object",
			input: `{"search_intent": "gifts",}`,
			want:  expansion{Intent: "gifts"},
		},
		{
			name:  "trailing comma in array",
			input: `{"product_categories": ["a", "b",]}`,
			want:  expansion{Categories: []string{"a", "b"}},
		},
		{
			name:  "bare keys",
			input: `{search_intent: "gifts", product_categories: ["a"]}`,
			want:  expansion{Intent: "gifts", Categories: []string{"a"}},
		},
		{
			name:  "bare keys with trailing comma",
			input: "```\n{search_intent: \"gifts\",}\n```",
			want:  expansion{Intent: "gifts"},
		},
		{
			name:    "no object at all",
			input:   "I cannot answer that.",
			wantErr: true,
		},
		{
			name:    "unrepairable",
			input:   `{"search_intent": "unterminated`,
			wantErr: true,
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got expansion
			err := DecodeObject(tt.input, &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeObject() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeObject() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

type score struct {
	I int     `json:"i"`
	S float64 `json:"s"`
}

func TestDecodeArray(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []score
		wantErr bool
	}{
		{
			name:  "clean array",
			input: `[{"i": 0, "s": 0.9}, {"i": 2, "s": 0.7}]`,
			want:  []score{{I: 0, S: 0.9}, {I: 2, S: 0.7}},
		},
		{
			name:  "fenced with prose",
			input: "Here you go:\n```json\n[{\"i\": 1, \"s\": 0.8}]\n```",
			want:  []score{{I: 1, S: 0.8}},
		},
		{
			name:  "trailing comma",
			input: `[{"i": 0, "s": 0.9},]`,
			want:  []score{{I: 0, S: 0.9}},
		},
		{
			name:  "truncated mid element",
			input: `[{"i": 0, "s": 0.9}, {"i": 1, "s": 0.8}, {"i": 2, "s":`,
			want:  []score{{I: 0, S: 0.9}, {I: 1, S: 0.8}},
		},
		{
			name:  "bare keys",
			input: `[{i: 0, s: 0.9}]`,
			want:  []score{{I: 0, S: 0.9}},
		},
		{
			name:  "empty array",
			input: `[]`,
			want:  []score{},
		},
		{
			name:    "no array",
			input:   "nothing matched",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []score
			err := DecodeArray(tt.input, &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeArray() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeArray() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRepair_DoesNotTouchQuotedText(t *testing.T) {
	in := `{"note": "sizes: S, M, L"}`
	var got map[string]string
	if err := DecodeObject(in, &got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["note"] != "sizes: S, M, L" {
		t.Errorf("quoted value mangled: %q", got["note"])
	}
}
