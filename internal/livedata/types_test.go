package livedata

import "testing"

func TestChannelPath(t *testing.T) {
	if got := ChannelMarket.Path(); got != "/ws/market" {
		t.Errorf("Path() = %s, want /ws/market", got)
	}
	if got := ChannelSentiment.Path(); got != "/ws/sentiment" {
		t.Errorf("Path() = %s, want /ws/sentiment", got)
	}
}

func TestDefaultChannels_ExcludesSentiment(t *testing.T) {
	for _, ch := range DefaultChannels() {
		if ch == ChannelSentiment {
			t.Fatal("sentiment must not be dialed by default")
		}
	}
	if got := len(DefaultChannels()); got != 6 {
		t.Errorf("DefaultChannels() count = %d, want 6", got)
	}
}

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "empty falls back to localhost",
			raw:  "",
			want: "ws://localhost:8000",
		},
		{
			name: "ws passes through",
			raw:  "ws://feed.example.com:9000",
			want: "ws://feed.example.com:9000",
		},
		{
			name: "http upgrades to ws",
			raw:  "http://feed.example.com",
			want: "ws://feed.example.com",
		},
		{
			name: "https upgrades to wss",
			raw:  "https://feed.example.com",
			want: "wss://feed.example.com",
		},
		{
			name: "trailing slash trimmed",
			raw:  "ws://feed.example.com/",
			want: "ws://feed.example.com",
		},
		{
			name:    "unsupported scheme",
			raw:     "ftp://feed.example.com",
			wantErr: true,
		},
		{
			name:    "missing host",
			raw:     "ws://",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveBaseURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolveBaseURL(%q) error = nil, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveBaseURL(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ResolveBaseURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
