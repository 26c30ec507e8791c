package calendar

import "strings"

// MatchTitle picks the event whose title best matches query. Tiers are tried
// from most to least specific and the first tier with a hit wins:
//
//  1. case-insensitive equality
//  2. substring containment in either direction
//  3. any shared word longer than two characters
//
// Within a tier the earliest event in the slice wins.
func MatchTitle(events []EventSummary, query string) (EventSummary, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return EventSummary{}, false
	}

	for _, ev := range events {
		if strings.ToLower(strings.TrimSpace(ev.Summary)) == q {
			return ev, true
		}
	}

	for _, ev := range events {
		title := strings.ToLower(strings.TrimSpace(ev.Summary))
		if title == "" {
			continue
		}
		if strings.Contains(title, q) || strings.Contains(q, title) {
			return ev, true
		}
	}

	words := significantWords(q)
	if len(words) == 0 {
		return EventSummary{}, false
	}
	for _, ev := range events {
		for tw := range significantWords(strings.ToLower(ev.Summary)) {
			if words[tw] {
				return ev, true
			}
		}
	}
	return EventSummary{}, false
}

// significantWords returns the words of s longer than two characters.
func significantWords(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(w) > 2 {
			words[w] = true
		}
	}
	return words
}
