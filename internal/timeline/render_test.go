package timeline

import (
	"strings"
	"testing"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00:00"},
		{0.999, "00:00:00"},
		{59.99, "00:00:59"},
		{60, "00:01:00"},
		{3723.4, "01:02:03"},
		{86399, "23:59:59"},
		{86400, "24:00:00"},
		{360000, "100:00:00"},
		{-3, "00:00:00"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.in); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	in := "SLIDE 1\n00:00:01 hello\n\nSLIDE 2\n00:00:42 \n01:00:00 later on\r\n"
	tr, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(tr.Blocks))
	}
	if tr.Blocks[1].Label != "SLIDE 2" || len(tr.Blocks[1].Lines) != 2 {
		t.Fatalf("unexpected second block %+v", tr.Blocks[1])
	}
	if l := tr.Blocks[1].Lines[1]; l.Timestamp != 3600 || l.Text != "later on" {
		t.Errorf("unexpected line %+v", l)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"utterance before header": "00:00:01 orphan\nPART 0\n",
		"garbage line":            "PART 0\nnot a transcript line\n",
		"bad minutes":             "PART 0\n00:75:00 text\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(in)); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestRender_Empty(t *testing.T) {
	if out := (Transcript{}).Render(); len(out) != 0 {
		t.Errorf("expected empty output, got %q", out)
	}
}
