// Package dedupe computes action fingerprints used as canonical dedup keys.
package dedupe

// Option applies a configuration option to a Fingerprinter.
type Option func(*Fingerprinter)

// WithWaiverTypes replaces the event types treated as waiver awards.
func WithWaiverTypes(types ...string) Option {
	return func(f *Fingerprinter) {
		if len(types) > 0 {
			f.waiverTypes = toSet(types)
		}
	}
}

// WithFreeAgentTypes replaces the event types treated as free-agent moves.
func WithFreeAgentTypes(types ...string) Option {
	return func(f *Fingerprinter) {
		if len(types) > 0 {
			f.freeAgentTypes = toSet(types)
		}
	}
}

// WithLockTypes replaces the event types treated as roster-lock markers.
func WithLockTypes(types ...string) Option {
	return func(f *Fingerprinter) {
		if len(types) > 0 {
			f.lockTypes = toSet(types)
		}
	}
}

// WithWaiverNestedTypes replaces the nested provider record types that still
// count as waiver awards when an award row carries no identity fields.
func WithWaiverNestedTypes(types ...string) Option {
	return func(f *Fingerprinter) {
		if len(types) > 0 {
			f.waiverNestedTypes = toSet(types)
		}
	}
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
