// Package servervalues substitutes deferred-value sentinels (e.g. the
// server timestamp placeholder) in a raw, not-yet-a-Node value tree against
// a resolution context supplied by the caller. This mirrors the small,
// single-purpose deterministic-transform packages in the teacher corpus
// (internal/idgen): no shared state, pure functions over plain values.
package servervalues

// TypeKey is the sentinel map key that marks a deferred-value placeholder,
// e.g. map[string]any{TypeKey: TimestampType}.
const TypeKey = ".sv"

// TimestampType is the deferred-value placeholder for "substitute the
// server's current time, in milliseconds since epoch".
const TimestampType = "timestamp"

// Context is the set of named values a deferred-value placeholder may
// resolve against. The engine builds one via GenerateContext before every
// write.
type Context map[string]any

// GenerateContext builds the resolution context the engine supplies for a
// single write: the server time at the moment the write is issued.
func GenerateContext(serverTimeMillis int64) Context {
	return Context{"timestamp": serverTimeMillis}
}

// Resolve walks raw (as produced by decoding a user-supplied value into
// `any`) and replaces every deferred-value sentinel with its resolution
// from ctx. Values with no matching sentinel are returned unchanged
// (scalars round-trip as-is; maps and slices are copied so the original
// caller-supplied value is never mutated in place).
func Resolve(raw any, ctx Context) any {
	switch v := raw.(type) {
	case map[string]any:
		if sv, ok := v[TypeKey]; ok {
			if name, ok := sv.(string); ok {
				if resolved, ok := ctx[name]; ok {
					return resolved
				}
			}
			// Unknown or unresolved sentinel: fall through and copy the
			// map, marker entry included, resolving its other children.
		}
		out := make(map[string]any, len(v))
		for k, cv := range v {
			out[k] = Resolve(cv, ctx)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, cv := range v {
			out[i] = Resolve(cv, ctx)
		}
		return out
	default:
		return v
	}
}

// IsDeferred reports whether raw is itself a deferred-value sentinel.
func IsDeferred(raw any) bool {
	m, ok := raw.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m[TypeKey]
	return ok
}
