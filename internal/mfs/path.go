// Package mfs builds canonical MFS paths for the CAS node's mutable namespace.
package mfs

import (
	"fmt"
	"strings"
)

// PathError reports a component that could not be safely appended to an
// MFS path.
type PathError struct {
	Component string
	Reason    string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path component %q: %s", e.Component, e.Reason)
}

// Normalize builds the canonical POSIX path /{prefix}/{bucket}/{key} used
// on the CAS node. Each input is appended with checked semantics: parent
// references, absolute segments, and NUL bytes are rejected. The function
// is pure; callers map a *PathError to a client error.
func Normalize(prefix, bucket, key string) (string, error) {
	segments := make([]string, 0, 8)
	for _, component := range []string{prefix, bucket, key} {
		if err := pushChecked(&segments, component); err != nil {
			return "", err
		}
	}
	return "/" + strings.Join(segments, "/"), nil
}

// pushChecked splits component on '/' and appends its segments, rejecting
// anything that would escape or corrupt the path.
func pushChecked(segments *[]string, component string) error {
	if strings.ContainsRune(component, 0) {
		return &PathError{Component: component, Reason: "contains NUL byte"}
	}
	if strings.HasPrefix(component, "/") {
		return &PathError{Component: component, Reason: "absolute segment"}
	}
	for _, seg := range strings.Split(component, "/") {
		switch seg {
		case "", ".":
			// Normalized away.
		case "..":
			return &PathError{Component: component, Reason: "parent reference"}
		default:
			*segments = append(*segments, seg)
		}
	}
	return nil
}

// Ancestors returns the ancestors of key from deepest to shallowest,
// including key itself and excluding the empty root. For "a/x/y" it
// returns ["a/x/y", "a/x", "a"].
func Ancestors(key string) []string {
	key = strings.Trim(key, "/")
	if key == "" {
		return nil
	}
	var out []string
	for {
		out = append(out, key)
		idx := strings.LastIndexByte(key, '/')
		if idx < 0 {
			return out
		}
		key = key[:idx]
	}
}
