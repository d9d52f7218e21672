package envelope

import "testing"

func TestSplit(t *testing.T) {
	cases := []struct {
		addr, user, domain string
	}{
		{"lalala@lelele", "lalala", "lelele"},
	}

	for _, c := range cases {
		if user := UserOf(c.addr); user != c.user {
			t.Errorf("%q: expected user %q, got %q", c.addr, c.user, user)
		}
		if domain := DomainOf(c.addr); domain != c.domain {
			t.Errorf("%q: expected domain %q, got %q",
				c.addr, c.domain, domain)
		}
	}
}

func TestValidSender(t *testing.T) {
	cases := []struct {
		addr string
		ok   bool
	}{
		{"", true},
		{"joe@example.com", true},
		{"not-an-address", false},
		{"@example.com", false},
	}
	for _, c := range cases {
		if ok := ValidSender(c.addr); ok != c.ok {
			t.Errorf("ValidSender(%q) = %v, want %v", c.addr, ok, c.ok)
		}
	}
}
