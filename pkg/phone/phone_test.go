package phone

import "testing"

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"landline style 10 digits gains mobile nine", "1133334444", "5511933334444"},
		{"mobile 11 digits gains country code", "11987654321", "5511987654321"},
		{"already canonical 13 digits unchanged", "5511987654321", "5511987654321"},
		{"country prefixed 12 digits gains mobile nine", "551187654321", "5511987654321"},
		{"formatted input strips punctuation", "+55 (11) 98765-4321", "5511987654321"},
		{"jid suffix stripped", "5511987654321@s.whatsapp.net", "5511987654321"},
		{"too short rejected", "12345", ""},
		{"empty rejected", "", ""},
		{"overlong keeps last eleven digits", "00555511987654321", "5511987654321"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := Canonicalize(tc.in); got != tc.want {
				t.Fatalf("Canonicalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"1133334444", "11987654321", "5511987654321", "551187654321"}
	for _, in := range inputs {
		once := Canonicalize(in)
		twice := Canonicalize(once)
		if once != twice {
			t.Fatalf("Canonicalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestOnlyDigits(t *testing.T) {
	t.Parallel()

	if got := OnlyDigits("+55 (11) 9.8765-4321"); got != "5511987654321" {
		t.Fatalf("OnlyDigits = %q", got)
	}
}
