package redis

import "testing"

func TestKey(t *testing.T) {
	tests := []struct {
		prefix string
		parts  []string
		want   string
	}{
		{prefix: "", parts: []string{"market", "7"}, want: "market:7"},
		{prefix: "marketd", parts: []string{"market", "7"}, want: "marketd:market:7"},
		{prefix: "marketd", parts: []string{"lock", "market:7"}, want: "marketd:lock:market:7"},
	}
	for _, tt := range tests {
		c := &Client{prefix: tt.prefix}
		if got := c.key(tt.parts...); got != tt.want {
			t.Errorf("key(%q, %v) = %q, want %q", tt.prefix, tt.parts, got, tt.want)
		}
	}
}

func TestHasPattern(t *testing.T) {
	for ch, want := range map[string]bool{
		"markets":     false,
		"ch:market:*": true,
		"ch:market:?": true,
		"ch:market:1": false,
	} {
		if got := hasPattern(ch); got != want {
			t.Errorf("hasPattern(%q) = %v, want %v", ch, got, want)
		}
	}
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	if slidingWindowLua == "" {
		t.Fatal("sliding window script not embedded")
	}
}
