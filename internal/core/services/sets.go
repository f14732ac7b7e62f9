package services

// stringSet gives cheap membership checks over ID lists. The filter stages
// operate on set semantics; slice order is only preserved where noted.
type stringSet map[string]struct{}

func newStringSet(items []string) stringSet {
	s := make(stringSet, len(items))
	s.addAll(items)
	return s
}

func (s stringSet) add(id string) {
	s[id] = struct{}{}
}

func (s stringSet) addAll(ids []string) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

func (s stringSet) has(id string) bool {
	_, ok := s[id]
	return ok
}

// subtract returns the items not in excl, preserving input order.
func subtract(items []string, excl stringSet) []string {
	out := make([]string, 0, len(items))
	for _, id := range items {
		if !excl.has(id) {
			out = append(out, id)
		}
	}
	return out
}

// intersect returns the items present in other, preserving input order.
func intersect(items []string, other stringSet) []string {
	out := []string{}
	for _, id := range items {
		if other.has(id) {
			out = append(out, id)
		}
	}
	return out
}
