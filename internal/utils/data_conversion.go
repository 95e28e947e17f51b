// Package utils holds small, dependency-free helpers shared across the
// core's packages.
package utils

// StringPtr returns a pointer to s, for building optional string fields
// without an intermediate variable at the call site.
func StringPtr(s string) *string {
	return &s
}

// IntPtr returns a pointer to i, for optional token-count fields.
func IntPtr(i int) *int {
	return &i
}

// StringPtrValue dereferences s, returning "" for a nil pointer.
func StringPtrValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
