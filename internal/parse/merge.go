package parse

// InjectionMode governs whether externally injected fields or LLM-extracted
// fields win on conflict.
type InjectionMode string

const (
	// ModeGuide layers defaults, then injected, then extracted: extracted
	// data wins. Injected fields act as guidance.
	ModeGuide InjectionMode = "guide"
	// ModeFrozen layers defaults, then extracted, then injected: injected
	// fields win. Injected fields are authoritative.
	ModeFrozen InjectionMode = "frozen"
)

// Merge combines canonical defaults, injected fields, and extracted data
// under the precedence policy selected by mode. Inputs are not mutated.
func Merge(defaults, injected, extracted map[string]any, mode InjectionMode) map[string]any {
	out := make(map[string]any, len(defaults)+len(injected)+len(extracted))

	order := []map[string]any{defaults, injected, extracted}
	if mode == ModeFrozen {
		order = []map[string]any{defaults, extracted, injected}
	}

	for _, layer := range order {
		for k, v := range layer {
			if v == nil {
				// A nil never overrides a concrete value from a lower layer.
				if _, exists := out[k]; exists {
					continue
				}
			}
			out[k] = v
		}
	}
	return out
}
