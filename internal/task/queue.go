package task

// Category is one of the fixed production queues. Each queue owns a set
// of crew roles; a task lands in the first queue whose role set
// intersects its required roles.
type Category string

const (
	QueueCreative    Category = "creative"
	QueueTechnical   Category = "technical"
	QueuePerformance Category = "performance"
	QueueSupport     Category = "support"
	QueueManagement  Category = "management"
)

// categoryOrder fixes the classification precedence. A task whose roles
// span several queues goes to the first match.
var categoryOrder = []Category{
	QueueCreative,
	QueueTechnical,
	QueuePerformance,
	QueueSupport,
	QueueManagement,
}

var categoryRoles = map[Category][]string{
	QueueCreative:    {"director", "choreographer", "playwright"},
	QueueTechnical:   {"lighting_designer", "sound_designer", "set_designer"},
	QueuePerformance: {"actor", "understudy", "dancer"},
	QueueSupport:     {"stagehand", "costume_designer", "prop_master"},
	QueueManagement:  {"stage_manager", "producer", "house_manager"},
}

// Categories lists the queues in classification order.
func Categories() []Category {
	return append([]Category(nil), categoryOrder...)
}

// Classify picks the queue for a role set. The second result is false
// when no queue matched and the support fallback was used.
func Classify(roles []string) (Category, bool) {
	for _, cat := range categoryOrder {
		for _, qr := range categoryRoles[cat] {
			for _, r := range roles {
				if r == qr {
					return cat, true
				}
			}
		}
	}
	return QueueSupport, false
}

// queue is one priority-ordered pending list. Insertion is stable:
// equal priorities keep arrival order.
type queue struct {
	category Category
	items    []*Task
}

func (q *queue) insert(t *Task) {
	idx := len(q.items)
	for i, it := range q.items {
		if t.Priority < it.Priority {
			idx = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = t
}

func (q *queue) front() *Task {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *queue) pop() *Task {
	if len(q.items) == 0 {
		return nil
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t
}

func (q *queue) remove(id string) bool {
	for i, it := range q.items {
		if it.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *queue) len() int { return len(q.items) }

// queueSet holds the five production queues.
type queueSet struct {
	queues map[Category]*queue
}

func newQueueSet() *queueSet {
	s := &queueSet{queues: make(map[Category]*queue, len(categoryOrder))}
	for _, cat := range categoryOrder {
		s.queues[cat] = &queue{category: cat}
	}
	return s
}

func (s *queueSet) get(cat Category) *queue {
	return s.queues[cat]
}

func (s *queueSet) lengths() map[Category]int {
	out := make(map[Category]int, len(s.queues))
	for cat, q := range s.queues {
		out[cat] = q.len()
	}
	return out
}
