package metrics

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/healthz", "/healthz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"", "/"},
		{"/mybucket", "/{bucket}"},
		{"/mybucket/", "/{bucket}"},
		{"/mybucket/key.txt", "/{bucket}/{key}"},
		{"/mybucket/deep/nested/key", "/{bucket}/{key}"},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.path); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestRegisterIdempotent(t *testing.T) {
	Register()
	Register() // must not panic on double registration
}
