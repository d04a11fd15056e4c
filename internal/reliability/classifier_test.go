package reliability

import "testing"

func TestIsCompatibilityError(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want bool
	}{
		{name: "status 400", msg: "upstream returned 400", want: true},
		{name: "bad request mixed case", msg: "Bad Request from provider", want: true},
		{name: "model missing", msg: "Model gpt-99 not found", want: true},
		{name: "unsupported param", msg: "temperature Unsupported for this endpoint", want: true},
		{name: "invalid api shape", msg: "INVALID request body", want: true},
		{name: "rate limit", msg: "429 too many requests", want: false},
		{name: "network", msg: "connection reset by peer", want: false},
		{name: "empty", msg: "", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsCompatibilityError(tc.msg); got != tc.want {
				t.Fatalf("IsCompatibilityError(%q) = %v, want %v", tc.msg, got, tc.want)
			}
		})
	}
}

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404, 413} {
		if IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = true, want false", code)
		}
	}
}
