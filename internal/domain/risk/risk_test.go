package risk

import "testing"

func TestParse(t *testing.T) {
	for _, s := range []string{"low", "medium", "high"} {
		l, err := Parse(s)
		if err != nil {
			t.Errorf("Parse(%q): unexpected error %v", s, err)
		}
		if l.String() != s {
			t.Errorf("Parse(%q) = %q", s, l)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "HIGH", "critical", "unknown"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q): expected error", s)
		}
	}
}

func TestDerive(t *testing.T) {
	cases := []struct {
		class int
		prob  float64
		want  Level
	}{
		{1, 0.9, High},
		{1, 0.85, High},
		{1, 0.7, Medium},
		{1, 0.6, Medium},
		{1, 0.3, Low},
		{0, 0.7, Medium},
		{0, 0.6, Medium},
		{0, 0.2, Low},
	}
	for _, tc := range cases {
		if got := Derive(tc.class, tc.prob); got != tc.want {
			t.Errorf("Derive(%d, %v) = %v, want %v", tc.class, tc.prob, got, tc.want)
		}
	}
}
