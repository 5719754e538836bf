package privacy

import (
	"regexp"
	"unicode"
)

// Category groups detections that share a placeholder.
type Category string

const (
	CategoryEmail         Category = "email"
	CategoryEmailProvider Category = "email_provider"
	CategoryPhone         Category = "phone"
	CategoryContact       Category = "contact"
	CategoryLink          Category = "link"
)

var placeholders = map[Category]string{
	CategoryEmail:         "[Hidden Email]",
	CategoryEmailProvider: "[Hidden Email Provider]",
	CategoryPhone:         "[Hidden Phone]",
	CategoryContact:       "[Hidden Contact]",
	CategoryLink:          "[Hidden Link]",
}

// Placeholder is the token that replaces a detected span.
func (c Category) Placeholder() string {
	return placeholders[c]
}

// placeholderPattern recognises tokens already inserted by masking. Longer
// alternatives come first so "Email Provider" is not cut short.
var placeholderPattern = regexp.MustCompile(`\[Hidden (?:Email Provider|Email|Phone|Contact|Link)\]`)

// Matcher detects one kind of contact detail.
type Matcher struct {
	Name     string
	Category Category
	pattern  *regexp.Regexp
	accept   func(match string) bool
}

// NewMatcher compiles pattern; accept may veto individual matches.
func NewMatcher(name string, category Category, pattern string, accept func(string) bool) Matcher {
	return Matcher{
		Name:     name,
		Category: category,
		pattern:  regexp.MustCompile(pattern),
		accept:   accept,
	}
}

// Spans returns the byte ranges this matcher would mask.
func (m Matcher) Spans(text string) [][]int {
	if text == "" {
		return nil
	}
	var out [][]int
	for _, loc := range m.pattern.FindAllStringIndex(text, -1) {
		if loc[1] <= loc[0] {
			continue
		}
		if m.accept != nil && !m.accept(text[loc[0]:loc[1]]) {
			continue
		}
		out = append(out, loc)
	}
	return out
}

// Matches reports whether the text holds at least one accepted match.
func (m Matcher) Matches(text string) bool {
	return len(m.Spans(text)) > 0
}

// Mask replaces this matcher's spans only.
func (m Matcher) Mask(text string) string {
	segs, _ := m.apply(splitSegments(text))
	return joinSegments(segs)
}

// apply masks spans found in the unfrozen text read as one string, so a
// placeholder sitting inside a number or address does not hide it. A span
// that crosses placeholders swallows them.
func (m Matcher) apply(segs []segment) ([]segment, bool) {
	open, starts := flatten(segs)
	spans := m.Spans(open)
	if len(spans) == 0 {
		return segs, false
	}

	out := make([]segment, 0, len(segs)+2*len(spans))
	k, inSpan := 0, false
	for i, seg := range segs {
		if seg.frozen {
			if !inSpan {
				out = append(out, seg)
			}
			continue
		}
		base, end := starts[i], starts[i]+len(seg.text)
		for pos := base; pos < end; {
			switch {
			case inSpan:
				stop := min(spans[k][1], end)
				if stop == spans[k][1] {
					inSpan = false
					k++
				}
				pos = stop
			case k < len(spans) && spans[k][0] < end:
				if spans[k][0] > pos {
					out = append(out, segment{text: seg.text[pos-base : spans[k][0]-base]})
				}
				out = append(out, segment{text: m.Category.Placeholder(), frozen: true})
				pos, inSpan = spans[k][0], true
			default:
				out = append(out, segment{text: seg.text[pos-base:]})
				pos = end
			}
		}
	}
	return out, true
}

// segment is a piece of text; frozen pieces are placeholders.
type segment struct {
	text   string
	frozen bool
}

func splitSegments(text string) []segment {
	var segs []segment
	last := 0
	for _, loc := range placeholderPattern.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			segs = append(segs, segment{text: text[last:loc[0]]})
		}
		segs = append(segs, segment{text: text[loc[0]:loc[1]], frozen: true})
		last = loc[1]
	}
	if last < len(text) {
		segs = append(segs, segment{text: text[last:]})
	}
	return segs
}

// flatten joins the unfrozen segments and records where each one starts in
// the joined text. Frozen segments get the offset of the next unfrozen byte.
func flatten(segs []segment) (string, []int) {
	starts := make([]int, len(segs))
	size := 0
	for i, seg := range segs {
		starts[i] = size
		if !seg.frozen {
			size += len(seg.text)
		}
	}
	buf := make([]byte, 0, size)
	for _, seg := range segs {
		if !seg.frozen {
			buf = append(buf, seg.text...)
		}
	}
	return string(buf), starts
}

func joinSegments(segs []segment) string {
	size := 0
	for _, seg := range segs {
		size += len(seg.text)
	}
	buf := make([]byte, 0, size)
	for _, seg := range segs {
		buf = append(buf, seg.text...)
	}
	return string(buf)
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
