package addr

import "testing"

func TestValidateIPv4Valid(t *testing.T) {
	if err := ValidateIPv4("192.168.1.1", 8080); err != nil {
		t.Fatal(err)
	}
	if err := ValidateIPv4("0.0.0.0", 0); err != nil {
		t.Fatal(err)
	}
	if err := ValidateIPv4("255.255.255.255", 65535); err != nil {
		t.Fatal(err)
	}
}

func TestValidateIPv4Invalid(t *testing.T) {
	cases := []struct {
		host string
		port int
	}{
		{"1.2.3", 80},
		{"1.2.3.4.5", 80},
		{"1.2.3.256", 80},
		{"a.b.c.d", 80},
		{"1.2.3.4", 0 - 1},
		{"1.2.3.4", 70000},
		{"1..3.4", 80},
	}
	for _, c := range cases {
		if err := ValidateIPv4(c.host, c.port); err == nil {
			t.Fatalf("ValidateIPv4(%q, %d) should have failed", c.host, c.port)
		}
	}
}

func TestToStringFromString(t *testing.T) {
	a, err := New("10.0.0.1", 9999)
	if err != nil {
		t.Fatal(err)
	}
	s := ToString(a)
	if s != "10.0.0.1:9999" {
		t.Fatalf("ToString = %q", s)
	}

	got, err := FromString(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != a {
		t.Fatalf("FromString(ToString(a)) = %+v, want %+v", got, a)
	}
}

func TestFromStringRejectsMalformed(t *testing.T) {
	for _, s := range []string{"no-port", "1.2.3.4:not-a-port", "1.2.3.4:70000"} {
		if _, err := FromString(s); err == nil {
			t.Fatalf("FromString(%q) should have failed", s)
		}
	}
}

func TestParseIdentifier(t *testing.T) {
	if _, ok := ParseIdentifier("10.0.0.1:80"); !ok {
		t.Fatal("expected address form to parse")
	}
	if _, ok := ParseIdentifier("alice"); ok {
		t.Fatal("expected bare name to not parse as an address")
	}
}
