// Package attrs reads values back out of slog-style key/value lists so one
// attribute list can feed both a log line and an audit event.
package attrs

// Lookup returns the value stored under key when it has type T. Later pairs
// override earlier ones; a trailing key without a value is ignored.
func Lookup[T any](kv []any, key string) (T, bool) {
	var (
		out   T
		found bool
	)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); !ok || k != key {
			continue
		}
		if v, ok := kv[i+1].(T); ok {
			out, found = v, true
		}
	}
	return out, found
}

// String returns the string under key, or "".
func String(kv []any, key string) string {
	v, _ := Lookup[string](kv, key)
	return v
}
