package compaction

import (
	"testing"
)

func TestParseContent(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantParsed bool
	}{
		{name: "object", content: `{"a":1}`, wantParsed: true},
		{name: "empty object", content: `{}`, wantParsed: true},
		{name: "object with whitespace", content: "  {\"a\": 1}\n", wantParsed: true},
		{name: "plain text", content: "hello there", wantParsed: false},
		{name: "empty string", content: "", wantParsed: false},
		{name: "malformed object", content: `{"a":`, wantParsed: false},
		{name: "array", content: `[1,2,3]`, wantParsed: false},
		{name: "string value", content: `"grade_details"`, wantParsed: false},
		{name: "number", content: `42`, wantParsed: false},
		{name: "null", content: `null`, wantParsed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseContent(tt.content)

			_, isParsed := got.(Parsed)
			if isParsed != tt.wantParsed {
				t.Errorf("ParseContent(%q) parsed = %v, want %v", tt.content, isParsed, tt.wantParsed)
			}
			if got.Raw() != tt.content {
				t.Errorf("Raw() = %q, want %q", got.Raw(), tt.content)
			}
		})
	}
}

func TestParsed_Has(t *testing.T) {
	parsed, ok := ParseContent(`{"grade_details":{"score":3},"a":1}`).(Parsed)
	if !ok {
		t.Fatal("expected Parsed content")
	}

	if !parsed.Has("grade_details") {
		t.Error("Has(grade_details) = false, want true")
	}
	if !parsed.Has("grade_details.score") {
		t.Error("Has(grade_details.score) = false, want true")
	}
	if parsed.Has("missing") {
		t.Error("Has(missing) = true, want false")
	}
}

func TestScrub(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		fields      []string
		want        string
		wantChanged bool
	}{
		{
			name:        "leading field removed",
			content:     `{"grade_details":5,"a":1}`,
			fields:      []string{"grade_details"},
			want:        `{"a":1}`,
			wantChanged: true,
		},
		{
			name:        "trailing field removed",
			content:     `{"a":1,"grade_details":5}`,
			fields:      []string{"grade_details"},
			want:        `{"a":1}`,
			wantChanged: true,
		},
		{
			name:        "only field removed",
			content:     `{"grade_details":1}`,
			fields:      []string{"grade_details"},
			want:        `{}`,
			wantChanged: true,
		},
		{
			name:        "object value removed",
			content:     `{"q":"x","grade_details":{"score":3,"notes":["a","b"]},"r":true}`,
			fields:      []string{"grade_details"},
			want:        `{"q":"x","r":true}`,
			wantChanged: true,
		},
		{
			name:        "field absent",
			content:     `{"a":2}`,
			fields:      []string{"grade_details"},
			want:        `{"a":2}`,
			wantChanged: false,
		},
		{
			name:        "non-ascii preserved",
			content:     `{"text":"héllo wörld ✓","grade_details":1}`,
			fields:      []string{"grade_details"},
			want:        `{"text":"héllo wörld ✓"}`,
			wantChanged: true,
		},
		{
			name:        "nested path",
			content:     `{"meta":{"grade_details":1,"k":2},"grade_details":3}`,
			fields:      []string{"meta.grade_details"},
			want:        `{"meta":{"k":2},"grade_details":3}`,
			wantChanged: true,
		},
		{
			name:        "multiple fields",
			content:     `{"grade_details":1,"feedback":"ok","a":1}`,
			fields:      []string{"grade_details", "feedback"},
			want:        `{"a":1}`,
			wantChanged: true,
		},
		{
			name:        "duplicated key removed",
			content:     `{"grade_details":1,"a":1,"grade_details":2}`,
			fields:      []string{"grade_details"},
			want:        `{"a":1}`,
			wantChanged: true,
		},
		{
			name:        "duplicated nested key removed",
			content:     `{"meta":{"grade_details":1,"grade_details":2,"k":3}}`,
			fields:      []string{"meta.grade_details"},
			want:        `{"meta":{"k":3}}`,
			wantChanged: true,
		},
		{
			name:        "no fields",
			content:     `{"grade_details":1}`,
			fields:      nil,
			want:        `{"grade_details":1}`,
			wantChanged: false,
		},
		{
			name:        "plain text",
			content:     "grade_details: 5",
			fields:      []string{"grade_details"},
			want:        "grade_details: 5",
			wantChanged: false,
		},
		{
			name:        "malformed json",
			content:     `{"grade_details":1,`,
			fields:      []string{"grade_details"},
			want:        `{"grade_details":1,`,
			wantChanged: false,
		},
		{
			name:        "array",
			content:     `[{"grade_details":1}]`,
			fields:      []string{"grade_details"},
			want:        `[{"grade_details":1}]`,
			wantChanged: false,
		},
		{
			name:        "key name in string value only",
			content:     `{"text":"grade_details"}`,
			fields:      []string{"grade_details"},
			want:        `{"text":"grade_details"}`,
			wantChanged: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := Scrub(tt.content, tt.fields)
			if got != tt.want {
				t.Errorf("Scrub() = %q, want %q", got, tt.want)
			}
			if changed != tt.wantChanged {
				t.Errorf("Scrub() changed = %v, want %v", changed, tt.wantChanged)
			}
		})
	}
}
