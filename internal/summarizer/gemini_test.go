package summarizer

import (
	"testing"
	"time"
)

func TestParseRetryDelay(t *testing.T) {
	tests := []struct {
		name string
		body string
		want time.Duration
	}{
		{
			name: "structured retryDelay detail",
			body: `{"error":{"code":429,"message":"Resource exhausted","status":"RESOURCE_EXHAUSTED","details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"37s"}]}}`,
			want: 42 * time.Second,
		},
		{
			name: "retry hint in message text",
			body: `{"error":{"code":429,"message":"Quota exceeded. Please retry in 20 seconds.","status":"RESOURCE_EXHAUSTED"}}`,
			want: 25 * time.Second,
		},
		{
			name: "no hint",
			body: `{"error":{"code":429,"message":"Resource exhausted","status":"RESOURCE_EXHAUSTED"}}`,
			want: 0,
		},
		{
			name: "not json",
			body: `too many requests`,
			want: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseRetryDelay([]byte(tc.body)); got != tc.want {
				t.Errorf("parseRetryDelay() = %v, want %v", got, tc.want)
			}
		})
	}
}
