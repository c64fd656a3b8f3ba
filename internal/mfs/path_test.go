package mfs

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		bucket  string
		key     string
		want    string
		wantErr bool
	}{
		{"simple", "buckets", "b", "k", "/buckets/b/k", false},
		{"nested key", "buckets", "b", "a/x/y/z", "/buckets/b/a/x/y/z", false},
		{"dot segments collapse", "buckets", "b", "a/./c", "/buckets/b/a/c", false},
		{"double slash collapses", "buckets", "b", "a//c", "/buckets/b/a/c", false},
		{"multi-segment prefix", "root/buckets", "b", "k", "/root/buckets/b/k", false},
		{"parent reference", "buckets", "b", "../escape", "", true},
		{"nested parent reference", "buckets", "b", "a/../../escape", "", true},
		{"absolute key", "buckets", "b", "/etc/passwd", "", true},
		{"absolute bucket", "buckets", "/b", "k", "", true},
		{"nul byte", "buckets", "b", "k\x00", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.prefix, tt.bucket, tt.key)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%q, %q, %q) = %q, want error", tt.prefix, tt.bucket, tt.key, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAncestors(t *testing.T) {
	tests := []struct {
		key  string
		want []string
	}{
		{"a/x/y", []string{"a/x/y", "a/x", "a"}},
		{"a", []string{"a"}},
		{"", nil},
		{"/a/b/", []string{"a/b", "a"}},
	}
	for _, tt := range tests {
		if got := Ancestors(tt.key); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Ancestors(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
