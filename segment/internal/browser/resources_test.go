package browser

import "testing"

func TestShouldBlock(t *testing.T) {
	set := blockSet([]string{"Fonts", "media", "images", "ping"})

	tests := []struct {
		resType string
		want    bool
	}{
		{"Font", true},
		{"Media", true},
		{"Image", false},
		{"Stylesheet", false},
		{"Ping", true},
		{"Document", false},
	}
	for _, tt := range tests {
		if got := shouldBlock(set, tt.resType); got != tt.want {
			t.Errorf("shouldBlock(%q) = %v, want %v", tt.resType, got, tt.want)
		}
	}
}

func TestBlockSet_NeverImages(t *testing.T) {
	set := blockSet([]string{"images", "stylesheets"})
	if len(set) != 0 {
		t.Fatalf("pixel-shaping types must not be blocked, got %v", set)
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if !c.Stealth {
		t.Error("stealth should default on")
	}
	if c.NavigateTimeout.Seconds() != 30 {
		t.Errorf("NavigateTimeout = %v", c.NavigateTimeout)
	}
	if c.ViewportWidth != 1366 || c.ViewportHeight != 768 {
		t.Errorf("viewport = %dx%d", c.ViewportWidth, c.ViewportHeight)
	}
	if c.Logger == nil {
		t.Error("logger not defaulted")
	}
}

func TestManager_ClosedRejects(t *testing.T) {
	m := NewManager(Config{})
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Browser(t.Context()); err == nil {
		t.Fatal("expected error from closed manager")
	}
}
