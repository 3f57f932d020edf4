package ton

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"1", 1_000_000_000, true},
		{"0.4999", 499_900_000, true},
		{"0.0001", 100_000, true},
		{"0.000000001", 1, true},
		{"0", 0, true},
		{"-1", 0, false},
		{"0.0000000001", 0, false}, // sub-nanoton
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if c.ok && err != nil {
			t.Errorf("Parse(%q): unexpected error %v", c.in, err)
			continue
		}
		if !c.ok {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %d", c.in, got)
			}
			continue
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, 100_000, 499_900_000, 1_000_000_000, 550_000_000, 123_456_789_012} {
		s := Format(n)
		back, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(Format(%d)=%q): %v", n, s, err)
		}
		if back != n {
			t.Errorf("round trip %d -> %q -> %d", n, s, back)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format(499_900_000); got != "0.4999" {
		t.Errorf("Format(499900000) = %q, want 0.4999", got)
	}
	if got := Format(1_000_000_000); got != "1" {
		t.Errorf("Format(1e9) = %q, want 1", got)
	}
}
