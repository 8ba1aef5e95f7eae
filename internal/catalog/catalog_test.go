package catalog

import (
	"testing"
)

func TestCanonicalizeURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"example.com/plan", "https://example.com/plan"},
		{"HTTPS://Example.COM:443/plan/", "https://example.com/plan"},
		{"https://example.com/plan?b=2&a=1", "https://example.com/plan?a=1&b=2"},
		{"https://example.com/plan#section", "https://example.com/plan"},
	}
	for _, tc := range cases {
		got, err := CanonicalizeURL(tc.in)
		if err != nil {
			t.Fatalf("CanonicalizeURL(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("CanonicalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalizeURL_Idempotent(t *testing.T) {
	once, err := CanonicalizeURL("HTTPS://Example.com:443/a/b/?z=1&a=2#frag")
	if err != nil {
		t.Fatal(err)
	}
	twice, err := CanonicalizeURL(once)
	if err != nil {
		t.Fatal(err)
	}
	if once != twice {
		t.Errorf("canonicalisation not idempotent: %q != %q", once, twice)
	}
}

func TestCanonicalizeURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "ftp://example.com/x", "https:///nohosthere"} {
		if _, err := CanonicalizeURL(in); err == nil {
			t.Errorf("CanonicalizeURL(%q) expected error, got none", in)
		}
	}
}

func TestInferVendorTag(t *testing.T) {
	tags := map[string]string{"vultr.com": "vultr", "ovh.com": "ovh"}

	if got := InferVendorTag("https://www.vultr.com/plan", tags); got != "vultr" {
		t.Errorf("want vultr, got %q", got)
	}
	if got := InferVendorTag("https://my.ovh.com/plan", tags); got != "ovh" {
		t.Errorf("want ovh, got %q", got)
	}
	if got := InferVendorTag("https://unknownhost.example/plan", tags); got != "unknownhost" {
		t.Errorf("want unknownhost, got %q", got)
	}
}
