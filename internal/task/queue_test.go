package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cat, matched := Classify([]string{"choreographer"})
	assert.Equal(t, QueueCreative, cat)
	assert.True(t, matched)

	cat, matched = Classify([]string{"sound_designer", "actor"})
	assert.Equal(t, QueueTechnical, cat, "category precedence, not role order, decides")
	assert.True(t, matched)

	cat, matched = Classify([]string{"fog_machine_operator"})
	assert.Equal(t, QueueSupport, cat)
	assert.False(t, matched)
}

func TestQueueOps(t *testing.T) {
	q := &queue{category: QueueSupport}
	q.insert(&Task{ID: "low", Priority: PriorityLow})
	q.insert(&Task{ID: "crit", Priority: PriorityCritical})
	q.insert(&Task{ID: "med", Priority: PriorityMedium})

	assert.Equal(t, 3, q.len())
	assert.Equal(t, "crit", q.front().ID)
	assert.Equal(t, "crit", q.pop().ID)

	assert.True(t, q.remove("low"))
	assert.False(t, q.remove("low"))
	assert.Equal(t, "med", q.front().ID)
}

func TestQueueSetLengths(t *testing.T) {
	s := newQueueSet()
	s.get(QueueCreative).insert(&Task{ID: "a"})
	s.get(QueueCreative).insert(&Task{ID: "b"})
	s.get(QueueManagement).insert(&Task{ID: "c"})

	lengths := s.lengths()
	assert.Equal(t, 2, lengths[QueueCreative])
	assert.Equal(t, 1, lengths[QueueManagement])
	assert.Equal(t, 0, lengths[QueuePerformance])
	assert.Len(t, lengths, 5)
}
