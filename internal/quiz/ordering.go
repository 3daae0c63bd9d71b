package quiz

import (
	"hash/fnv"
	"sort"

	"github.com/at-ishikawa/lessonquiz/internal/content"
)

// Order shuffles questions deterministically for attemptID.
// Two attempts get different orders; the same attempt always gets the same one.
func Order(attemptID string, questions []content.Question) []string {
	type keyed struct {
		id  string
		key uint64
	}
	items := make([]keyed, len(questions))
	for i, q := range questions {
		items[i] = keyed{id: q.ID, key: orderKey(attemptID, q.ID)}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].key != items[j].key {
			return items[i].key < items[j].key
		}
		return items[i].id < items[j].id
	})

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.id
	}
	return ids
}

func orderKey(attemptID, questionID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(attemptID + ":" + questionID))
	return h.Sum64()
}
