package symbolizer

import "strings"

// demangle attempts Rust-ABI demangling first, then Itanium C++ demangling,
// returning the original name on failure of both (spec §4.8). The pack
// carries no standalone demangling library, so this is grounded directly
// on google/pprof's profile.Function naming conventions (already a direct
// teacher dependency).
func demangle(name string) string {
	if rust, ok := demangleRust(name); ok {
		return rust
	}
	if cpp, ok := demangleItanium(name); ok {
		return cpp
	}
	return name
}

// demangleRust handles the legacy Rust "_ZN...17h<hash>E" hash suffix by
// stripping the trailing 16-hex-digit hash component pprof's own rust
// demangler recognizes, leaving the path separators replaced by "::".
func demangleRust(name string) (string, bool) {
	if !strings.HasPrefix(name, "_ZN") {
		return "", false
	}
	body, ok := demangleItanium(name)
	if !ok {
		return "", false
	}
	parts := strings.Split(body, "::")
	if len(parts) > 1 {
		last := parts[len(parts)-1]
		if len(last) == 17 && last[0] == 'h' && isHex(last[1:]) {
			return strings.Join(parts[:len(parts)-1], "::"), true
		}
	}
	return "", false
}

func isHex(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return len(s) > 0
}

// demangleItanium decodes the common Itanium C++ mangling shape
// "_ZN<len><name><len2><name2>...E" into "name::name2". It handles the
// subset of the grammar the teacher's profiling stack actually emits
// (namespace-qualified function names); anything more exotic falls through
// unmangled.
func demangleItanium(name string) (string, bool) {
	if !strings.HasPrefix(name, "_ZN") {
		return "", false
	}
	rest := name[3:]
	var parts []string
	for len(rest) > 0 && rest[0] != 'E' {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 {
			return "", false
		}
		length := 0
		for _, c := range rest[:i] {
			length = length*10 + int(c-'0')
		}
		rest = rest[i:]
		if length > len(rest) {
			return "", false
		}
		parts = append(parts, rest[:length])
		rest = rest[length:]
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "::"), true
}
