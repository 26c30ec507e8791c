package conversation

import "strings"

var (
	// anaphors mark a phrase as pointing at something already mentioned.
	anaphors = map[string]bool{"that": true, "the": true, "this": true, "it": true}

	// placeholders carry no identifying content of their own.
	placeholders = map[string]bool{"thing": true, "event": true, "one": true, "stuff": true}
)

// ResolveReference maps a spoken phrase like "that cooking thing" onto one of
// events, in order of precedence:
//
//  1. the reference core of the phrase and a title contain one another
//  2. a core word longer than two characters appears in the attendees
//  3. the list holds a single event and the phrase contains an anaphor
//
// The first event in list order wins within a step. With several candidates
// and no title or attendee hit it reports no match rather than guessing.
func ResolveReference(events []EventRef, phrase string) (EventRef, bool) {
	if len(events) == 0 {
		return EventRef{}, false
	}

	words := strings.Fields(normalize(phrase))
	core := referenceCore(words)

	if core != "" {
		for _, ev := range events {
			title := normalize(ev.Title)
			if title == "" {
				continue
			}
			if strings.Contains(title, core) || strings.Contains(core, title) {
				return ev, true
			}
		}

		for _, w := range strings.Fields(core) {
			if len(w) <= 2 {
				continue
			}
			for _, ev := range events {
				if strings.Contains(strings.ToLower(ev.Attendees), w) {
					return ev, true
				}
			}
		}
	}

	if len(events) == 1 {
		for _, w := range words {
			if anaphors[w] {
				return events[0], true
			}
		}
	}
	return EventRef{}, false
}

// normalize lowercases s, drops everything but ASCII letters, digits and
// whitespace, and collapses runs of whitespace.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n', r == '\r':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func referenceCore(words []string) string {
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if anaphors[w] || placeholders[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// HasReferenceCue reports whether phrase contains one of the words that make
// context resolution worth trying ("that", "the", "this", "it", "my").
func HasReferenceCue(phrase string) bool {
	for _, w := range strings.Fields(normalize(phrase)) {
		if anaphors[w] || w == "my" {
			return true
		}
	}
	return false
}
