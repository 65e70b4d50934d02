// Package profiling provides common helpers for working with thread names
// and captured stack traces from allocation logs.
package profiling

import "strings"

// ExtractThreadGroup extracts the thread group name by removing trailing numbers and separators.
// For example: "tokio-runtime-worker-3" -> "tokio-runtime-worker"
func ExtractThreadGroup(threadName string) string {
	name := threadName
	for len(name) > 0 {
		lastChar := name[len(name)-1]
		if lastChar >= '0' && lastChar <= '9' {
			name = name[:len(name)-1]
		} else if lastChar == '-' || lastChar == '_' || lastChar == '#' {
			name = name[:len(name)-1]
		} else {
			break
		}
	}
	if name == "" {
		return threadName
	}
	return name
}

// TrimGenerics strips the generic parameter list from a type or function
// name. For example: "Vec<String>" -> "Vec", "HashMap<K, V>" -> "HashMap".
// Names without generics are returned unchanged.
func TrimGenerics(name string) string {
	if i := strings.IndexByte(name, '<'); i > 0 {
		return name[:i]
	}
	return name
}

// BaseTypeName strips module path segments and generic parameters from a
// fully qualified type name. For example:
// "alloc::vec::Vec<String>" -> "Vec".
func BaseTypeName(name string) string {
	name = TrimGenerics(name)
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	return name
}

// StackToString converts a call stack to a semicolon-separated string.
func StackToString(stack []string) string {
	if len(stack) == 0 {
		return ""
	}
	return strings.Join(stack, ";")
}

// StringToStack converts a semicolon-separated string back to a call stack.
func StringToStack(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ";")
}
