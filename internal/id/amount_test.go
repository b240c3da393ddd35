package id

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmountFormatsTwelveDigits(t *testing.T) {
	cases := map[string]string{
		"2":                "2.000000000000",
		"5":                "5.000000000000",
		"0.1":              "0.100000000000",
		"1.23456789012345": "1.234567890123",
		"0.0000000000005":  "0.000000000001",
	}
	for in, want := range cases {
		d, err := ParseAmount(in)
		if err != nil {
			t.Fatalf("ParseAmount(%q) failed: %v", in, err)
		}
		if got := FormatAmount(d); got != want {
			t.Fatalf("ParseAmount(%q): expected %s, got %s", in, want, got)
		}
	}
}

func TestParseAmountRoundTrip(t *testing.T) {
	for _, in := range []string{"2", "0.000000000001", "123456.789", "0.3", "99999999.999999999999"} {
		first, err := ParseAmount(in)
		if err != nil {
			t.Fatalf("ParseAmount(%q) failed: %v", in, err)
		}
		second, err := ParseAmount(FormatAmount(first))
		if err != nil {
			t.Fatalf("reparse failed: %v", err)
		}
		if !first.Equal(second) || FormatAmount(first) != FormatAmount(second) {
			t.Fatalf("round trip drift for %q: %s vs %s", in, FormatAmount(first), FormatAmount(second))
		}
	}
}

func TestParseAmountRejectsNonPositive(t *testing.T) {
	for _, in := range []string{"0", "-1", "", "abc", "0.0000000000001"} {
		if _, err := ParseAmount(in); err == nil {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}

func TestFormatFiat(t *testing.T) {
	if got := FormatFiat(decimal.RequireFromString("1.005")); got != "1.01" {
		t.Fatalf("unexpected fiat format %s", got)
	}
	if got := FormatFiat(decimal.Zero); got != "0.00" {
		t.Fatalf("unexpected zero format %s", got)
	}
}
