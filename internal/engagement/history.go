package engagement

// DefaultHistoryCapacity is the number of aggregate samples kept per session.
const DefaultHistoryCapacity = 30

// History is a fixed-capacity ring of aggregate attention samples. Pushing
// onto a full ring evicts the oldest sample. Not safe for concurrent use.
type History struct {
	buf   []int
	start int
	size  int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{buf: make([]int, capacity)}
}

// Push appends a sample.
func (h *History) Push(v int) {
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = v
		h.size++
		return
	}
	h.buf[h.start] = v
	h.start = (h.start + 1) % len(h.buf)
}

// Values returns a copy of the samples, oldest first.
func (h *History) Values() []int {
	out := make([]int, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

func (h *History) Len() int { return h.size }

func (h *History) Cap() int { return len(h.buf) }
