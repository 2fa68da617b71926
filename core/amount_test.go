package core

import "testing"

func TestParseAmountRoundTrip(t *testing.T) {
	cases := []struct{ in, want string }{
		{"1000", "1000"},
		{"0.00015000", "0.00015000"},
		{"-12.5", "-12.5"},
		{"0", "0"},
	}
	for _, c := range cases {
		a, err := ParseAmount(c.in, "sat")
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", c.in, err)
		}
		if got := a.String(); got != c.want {
			t.Errorf("ParseAmount(%q).String() = %q, want %q", c.in, got, c.want)
		}
		if a.Currency() != "SAT" {
			t.Errorf("currency not uppercased: %q", a.Currency())
		}
	}
}

func TestParseAmountRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "abc", "1.2.3"} {
		if _, err := ParseAmount(bad, "sat"); err == nil {
			t.Errorf("ParseAmount(%q) should have failed", bad)
		}
	}
}

func TestAmountAddSubCrossCurrencyRejected(t *testing.T) {
	sat := NewAmount(100, 0, "SAT")
	btc := NewAmount(1, 0, "BTC")
	if _, err := sat.Add(btc); err == nil {
		t.Fatal("Add across currencies should fail")
	}
	if _, err := sat.Sub(btc); err == nil {
		t.Fatal("Sub across currencies should fail")
	}
	if _, err := sat.Cmp(btc); err == nil {
		t.Fatal("Cmp across currencies should fail")
	}
}

func TestAmountAddDifferentExponents(t *testing.T) {
	a, _ := ParseAmount("1.5", "USD")
	b, _ := ParseAmount("0.25", "USD")
	sum, err := a.Add(b)
	if err != nil {
		t.Fatal(err)
	}
	if sum.String() != "1.75" {
		t.Errorf("got %q want 1.75", sum.String())
	}
}

func TestAmountMulRatDivRounding(t *testing.T) {
	a := NewAmount(100, 0, "USD")
	up := a.MulRatDiv(1, 3, RoundUp)
	down := a.MulRatDiv(1, 3, RoundDown)
	nearest := a.MulRatDiv(1, 3, RoundNearest)
	if up.String() != "34" {
		t.Errorf("RoundUp(100/3) = %s, want 34", up.String())
	}
	if down.String() != "33" {
		t.Errorf("RoundDown(100/3) = %s, want 33", down.String())
	}
	if nearest.String() != down.String() {
		// 100/3 = 33.33..., nearest should equal down (33) since remainder < half
		t.Errorf("nearest=%s down=%s, expected equal for this ratio", nearest.String(), down.String())
	}
}

func TestAmountIsZeroAndSign(t *testing.T) {
	zero := NewAmount(0, 2, "USD")
	if !zero.IsZero() {
		t.Error("expected IsZero true")
	}
	if zero.Sign() != 0 {
		t.Errorf("expected sign 0, got %d", zero.Sign())
	}
	neg := NewAmount(-5, 0, "USD")
	if neg.Sign() != -1 {
		t.Errorf("expected sign -1, got %d", neg.Sign())
	}
}
