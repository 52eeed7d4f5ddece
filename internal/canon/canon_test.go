package canon

import (
	"strings"
	"testing"
)

func mustCanon(t *testing.T, raw string) string {
	t.Helper()
	v, err := ParseNumberPreserving([]byte(raw))
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	b, err := Canonicalize(v)
	if err != nil {
		t.Fatalf("canonicalize %q: %v", raw, err)
	}
	return string(b)
}

func TestCanonicalize_KeyOrderIndependence(t *testing.T) {
	a := mustCanon(t, `{"b":1,"a":2}`)
	b := mustCanon(t, `{"a":2,"b":1}`)
	if a != b {
		t.Fatalf("expected key-order independence, got %q vs %q", a, b)
	}
	if a != `{"a":2,"b":1}` {
		t.Fatalf("unexpected canonical form: %q", a)
	}
}

func TestCanonicalize_Whitespace(t *testing.T) {
	a := mustCanon(t, `{ "a" :  1 , "b":[1, 2,3] }`)
	if strings.ContainsAny(a, " \t\n") {
		t.Fatalf("canonical output should have no insignificant whitespace: %q", a)
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	first := mustCanon(t, `{"z":1,"a":[3,2,1],"m":{"y":true,"x":null}}`)
	v2, err := ParseNumberPreserving([]byte(first))
	if err != nil {
		t.Fatal(err)
	}
	second, err := Canonicalize(v2)
	if err != nil {
		t.Fatal(err)
	}
	if first != string(second) {
		t.Fatalf("canonicalization is not idempotent: %q != %q", first, second)
	}
}

func TestCanonicalize_Numbers(t *testing.T) {
	cases := map[string]string{
		`1`:      "1",
		`1.0`:    "1",
		`-0`:     "0",
		`1.5`:    "1.5",
		`100`:    "100",
		`1e2`:    "100",
		`1e21`:   "1e+21",
		`1e-7`:   "1e-7",
		`1e-5`:   "0.00001",
		`123456789012345680000`: "123456789012345680000",
	}
	for input, want := range cases {
		got := mustCanon(t, input)
		if got != want {
			t.Errorf("Canonicalize(%s) = %s, want %s", input, got, want)
		}
	}
}

func TestCanonicalize_NonFiniteRejected(t *testing.T) {
	_, err := Canonicalize(map[string]any{"x": nan()})
	var cerr *CanonicalizationError
	if err == nil {
		t.Fatal("expected error for NaN")
	}
	if !isCanonErr(err, &cerr) {
		t.Fatalf("expected CanonicalizationError, got %T: %v", err, err)
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func isCanonErr(err error, target **CanonicalizationError) bool {
	ce, ok := err.(*CanonicalizationError)
	if ok {
		*target = ce
	}
	return ok
}

func TestFingerprint_SoundnessAndDeterminism(t *testing.T) {
	v1, _ := ParseNumberPreserving([]byte(`{"a":1,"b":2}`))
	v2, _ := ParseNumberPreserving([]byte(`{"b":2,"a":1}`))
	v3, _ := ParseNumberPreserving([]byte(`{"a":1,"b":3}`))

	h1, err := Fingerprint(v1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Fingerprint(v2)
	if err != nil {
		t.Fatal(err)
	}
	h3, err := Fingerprint(v3)
	if err != nil {
		t.Fatal(err)
	}

	if h1 != h2 {
		t.Fatalf("expected equal fingerprints for permuted keys: %s != %s", h1, h2)
	}
	if h1 == h3 {
		t.Fatalf("expected different fingerprints for different content")
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestCanonicalize_NestedArraysAndUnicode(t *testing.T) {
	got := mustCanon(t, `{"s":"café","emoji":"😀","nested":[{"k":1},{"k":2}]}`)
	want := `{"emoji":"😀","nested":[{"k":1},{"k":2}],"s":"café"}`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
