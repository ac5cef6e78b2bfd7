package safeguard

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"
)

func staticLookup(addrs map[string][]string) LookupFunc {
	return func(_ context.Context, host string) ([]string, error) {
		if a, ok := addrs[host]; ok {
			return a, nil
		}
		return nil, errors.New("no such host")
	}
}

func TestCheckTarget(t *testing.T) {
	g := Guard{Lookup: staticLookup(map[string][]string{
		"example.com":      {"93.184.215.14"},
		"intranet.corp":    {"10.1.2.3"},
		"rebind.example":   {"93.184.215.14", "127.0.0.1"},
		"v6.example":       {"2606:2800:21f:cb07:6820:80da:af6b:8b2c"},
		"v6-local.example": {"fd00::1"},
	})}
	tests := []struct {
		url  string
		want error
	}{
		{"https://example.com/shop", nil},
		{"http://v6.example/", nil},
		{"https://unresolvable.example/", nil},
		{"http://8.8.8.8/", nil},
		{"ftp://example.com/", ErrUnsafeScheme},
		{"javascript:alert(1)", ErrUnsafeScheme},
		{"http://127.0.0.1:8080/admin", ErrPrivateTarget},
		{"http://localhost:3000/", ErrPrivateTarget},
		{"http://app.localhost/", ErrPrivateTarget},
		{"http://[::1]/", ErrPrivateTarget},
		{"http://[::ffff:10.0.0.1]/", ErrPrivateTarget},
		{"http://192.168.1.1/", ErrPrivateTarget},
		{"http://169.254.169.254/latest/meta-data", ErrPrivateTarget},
		{"http://100.64.0.1/", ErrPrivateTarget},
		{"http://0.0.0.0/", ErrPrivateTarget},
		{"https://intranet.corp/", ErrPrivateTarget},
		{"https://rebind.example/", ErrPrivateTarget},
		{"https://v6-local.example/", ErrPrivateTarget},
		{"http://127.1/", ErrPrivateTarget},
		{"http://2130706433/", ErrPrivateTarget},
		{"http://0x7f000001/", ErrPrivateTarget},
		{"http://0177.0.0.1/", ErrPrivateTarget},
		{"http://0x7f.0.0.1/", ErrPrivateTarget},
		{"http://10.1/", ErrPrivateTarget},
		{"http://127.0.0.1./", ErrPrivateTarget},
		{"http://134744072/", nil},
	}
	for _, tt := range tests {
		err := g.CheckTarget(context.Background(), tt.url)
		if !errors.Is(err, tt.want) {
			t.Errorf("CheckTarget(%q) = %v, want %v", tt.url, err, tt.want)
		}
	}
}

func TestIsPublic(t *testing.T) {
	tests := map[string]bool{
		"1.1.1.1":     true,
		"8.8.8.8":     true,
		"127.0.0.1":   false,
		"10.0.0.1":    false,
		"172.16.0.1":  false,
		"192.168.0.1": false,
		"224.0.0.1":   false,
		"::1":         false,
		"fe80::1":     false,
		"2001:4860::": true,
	}
	for ip, want := range tests {
		if got := IsPublic(netip.MustParseAddr(ip)); got != want {
			t.Errorf("IsPublic(%s) = %v, want %v", ip, got, want)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data := strings.Repeat("x", 100)
	got, err := LimitedReadAll(strings.NewReader(data), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(got))
	}

	_, err = LimitedReadAll(strings.NewReader(data), 50)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
}

func TestParseLegacyIPv4(t *testing.T) {
	tests := []struct {
		host   string
		want   string
		isIP   bool
		hasErr bool
	}{
		{"127.1", "127.0.0.1", true, false},
		{"2130706433", "127.0.0.1", true, false},
		{"0x7f000001", "127.0.0.1", true, false},
		{"0177.0.0.1", "127.0.0.1", true, false},
		{"192.168.257", "192.168.1.1", true, false},
		{"8.8.8.8.", "8.8.8.8", true, false},
		{"1.2.3.4.5", "", true, true},
		{"256.1.1.1", "", true, true},
		{"1.2.3.256", "", true, true},
		{"4294967296", "", true, true},
		{"09.1.1.1", "", true, true},
		{"example.com", "", false, false},
		{"1.2.3.example", "", false, false},
		{"1e3", "", false, false},
	}
	for _, tt := range tests {
		addr, isIP, err := parseLegacyIPv4(tt.host)
		if isIP != tt.isIP || (err != nil) != tt.hasErr {
			t.Errorf("parseLegacyIPv4(%q) isIP=%v err=%v", tt.host, isIP, err)
			continue
		}
		if tt.want != "" && addr.String() != tt.want {
			t.Errorf("parseLegacyIPv4(%q) = %s, want %s", tt.host, addr, tt.want)
		}
	}
}

func TestCheckTarget_MalformedNumericHost(t *testing.T) {
	g := Guard{Lookup: func(context.Context, string) ([]string, error) {
		return nil, errors.New("no such host")
	}}
	if err := g.CheckTarget(context.Background(), "http://1.2.3.4.5/"); err == nil {
		t.Fatal("malformed numeric host accepted")
	}
}
