package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{".5", 50, true},
		{"1.005", 101, true}, // half-up rounding
		{"12.344", 1234, true},
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"1e3", 0, false},
		{"0", 0, false},
		{"0.004", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"10000000000000", MaxCents, true},
		{"10000000000000.01", 0, false},
		{"4611686018427387904", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyArithmeticAndString(t *testing.T) {
	m := Money{Cents: 1230}
	if got := m.Neg().String(); got != "-12.30" {
		t.Fatalf("Neg().String() = %q", got)
	}
	if got := m.Add(Money{Cents: 70}); got.Cents != 1300 {
		t.Fatalf("Add = %d", got.Cents)
	}
	if got := m.Sub(Money{Cents: 1300}); got.Cents != -70 {
		t.Fatalf("Sub = %d", got.Cents)
	}
	if got := m.Major(); got != 12.3 {
		t.Fatalf("Major = %v", got)
	}
}
