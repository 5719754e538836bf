// Package privacy detects and masks contact details in free text so that
// customers and providers keep their conversations on the platform.
package privacy

// Filter runs every matcher over the text in a fixed order.
type Filter struct {
	matchers []Matcher
}

// NewFilter builds a filter from the given matchers, applied in order.
func NewFilter(matchers ...Matcher) *Filter {
	return &Filter{matchers: append([]Matcher(nil), matchers...)}
}

var defaultFilter = NewFilter(DefaultMatchers()...)

// Default returns the shared production filter.
func Default() *Filter {
	return defaultFilter
}

// ContainsSensitiveContent reports whether any matcher fires. Placeholders
// are read as absent, so one typed into the middle of a number does not hide it.
func (f *Filter) ContainsSensitiveContent(text string) bool {
	open, _ := flatten(splitSegments(text))
	for _, m := range f.matchers {
		if m.Matches(open) {
			return true
		}
	}
	return false
}

// Detect lists the categories found, in matcher order and without duplicates.
func (f *Filter) Detect(text string) []Category {
	open, _ := flatten(splitSegments(text))
	seen := map[Category]bool{}
	var out []Category
	for _, m := range f.matchers {
		if seen[m.Category] || !m.Matches(open) {
			continue
		}
		seen[m.Category] = true
		out = append(out, m.Category)
	}
	return out
}

// MaskSensitiveContent replaces every detected span with its category
// placeholder. All matchers run, and the pipeline repeats until a full pass
// changes nothing, so the result never trips ContainsSensitiveContent.
// Each replacement shrinks the unmasked text, which bounds the loop.
func (f *Filter) MaskSensitiveContent(text string) string {
	if text == "" {
		return text
	}
	segs := splitSegments(text)
	for {
		changed := false
		for _, m := range f.matchers {
			var c bool
			segs, c = m.apply(segs)
			changed = changed || c
		}
		if !changed {
			break
		}
	}
	return joinSegments(segs)
}

// ContainsSensitiveContent runs the default filter.
func ContainsSensitiveContent(text string) bool {
	return defaultFilter.ContainsSensitiveContent(text)
}

// MaskSensitiveContent runs the default filter.
func MaskSensitiveContent(text string) string {
	return defaultFilter.MaskSensitiveContent(text)
}
