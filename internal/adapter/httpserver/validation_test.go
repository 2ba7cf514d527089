package httpserver

import "testing"

func TestValidateSessionID(t *testing.T) {
	cases := []struct {
		name  string
		id    string
		valid bool
		code  string
	}{
		{"empty_is_valid", "", true, ""},
		{"too_long", makeString(101, 'a'), false, "TOO_LONG"},
		{"invalid_chars", "sess$%", false, "INVALID_FORMAT"},
		{"valid", "sess-01harzyx8abc", true, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ValidateSessionID(tc.id)
			if res.Valid != tc.valid {
				t.Fatalf("Valid=%v, want %v", res.Valid, tc.valid)
			}
			if !tc.valid {
				if len(res.Errors) != 1 || res.Errors[0].Code != tc.code {
					t.Fatalf("unexpected error: %+v", res.Errors)
				}
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	in := "  hello\x00world  "
	out := SanitizeString(in)
	if out != "helloworld" {
		t.Fatalf("SanitizeString output=%q", out)
	}

	// Long string should be truncated
	long := makeString(5000, 'a')
	out = SanitizeString(long)
	if len(out) != 4000 {
		t.Fatalf("expected length 4000, got %d", len(out))
	}
}

func makeString(n int, ch rune) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = ch
	}
	return string(b)
}
