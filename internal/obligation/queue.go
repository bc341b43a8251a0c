// Queue mechanics: the fixed-capacity slot array and its primitive
// mutations. All mutation of the slot array in the engine goes through the
// methods here or through the displacement cascade; nothing else writes
// slots directly.
package obligation

import (
	"fmt"

	"github.com/google/uuid"
)

// Queue is a fixed-capacity ordered sequence of delivery obligations.
// Occupied slots are contiguous from position 1; gaps are eliminated by
// compaction after every removal.
type Queue struct {
	slots []*Delivery // index 0 = position 1
}

// NewQueue creates an empty queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		panic(fmt.Sprintf("queue capacity %d < 1", capacity))
	}
	return &Queue{slots: make([]*Delivery, capacity)}
}

// Capacity returns the number of slots.
func (q *Queue) Capacity() int {
	return len(q.slots)
}

// Occupied returns the number of filled slots.
func (q *Queue) Occupied() int {
	n := 0
	for _, d := range q.slots {
		if d != nil {
			n++
		}
	}
	return n
}

// At returns the obligation at a 1-based position, or nil if the position
// is empty or out of range.
func (q *Queue) At(pos int) *Delivery {
	if pos < 1 || pos > len(q.slots) {
		return nil
	}
	return q.slots[pos-1]
}

// Find locates an obligation by ID. Returns nil, 0 when absent.
func (q *Queue) Find(id uuid.UUID) (*Delivery, int) {
	for i, d := range q.slots {
		if d != nil && d.ID == id {
			return d, i + 1
		}
	}
	return nil, 0
}

// FirstEmpty returns the first empty 1-based position, or 0 when full.
func (q *Queue) FirstEmpty() int {
	for i, d := range q.slots {
		if d == nil {
			return i + 1
		}
	}
	return 0
}

// All returns the queued obligations in position order.
func (q *Queue) All() []*Delivery {
	out := make([]*Delivery, 0, len(q.slots))
	for _, d := range q.slots {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

// place writes an obligation into a slot and stamps its position. The
// insertion-time analytics fields are stamped only once.
func (q *Queue) place(d *Delivery, pos int) {
	q.slots[pos-1] = d
	d.Position = pos
	if d.OriginalPosition == 0 {
		d.OriginalPosition = pos
	}
}

// Insert places an obligation at the first empty slot scanning from
// position 1.
func (q *Queue) Insert(d *Delivery) *OpError {
	pos := q.FirstEmpty()
	if pos == 0 {
		return errQueueFull(len(q.slots))
	}
	if d.Reason == "" {
		d.Reason = ReasonFirstEmpty
	}
	q.place(d, pos)
	return nil
}

// Remove clears a slot, compacts the queue, and returns the removed
// obligation with its position stamp cleared.
func (q *Queue) Remove(pos int) (*Delivery, *OpError) {
	if pos < 1 || pos > len(q.slots) {
		return nil, errInvalidPosition(pos, len(q.slots))
	}
	d := q.slots[pos-1]
	if d == nil {
		return nil, errPositionEmpty(pos)
	}
	q.slots[pos-1] = nil
	d.Position = 0
	q.compact()
	return d, nil
}

// Swap exchanges two occupied slots.
func (q *Queue) Swap(a, b int) *OpError {
	if a < 1 || a > len(q.slots) {
		return errInvalidPosition(a, len(q.slots))
	}
	if b < 1 || b > len(q.slots) {
		return errInvalidPosition(b, len(q.slots))
	}
	da, db := q.slots[a-1], q.slots[b-1]
	if da == nil {
		return errPositionEmpty(a)
	}
	if db == nil {
		return errPositionEmpty(b)
	}
	q.slots[a-1], q.slots[b-1] = db, da
	da.Position = b
	db.Position = a
	return nil
}

// MoveToPosition clears an obligation's current slot and places it at
// target, which must be empty. Low-level primitive used by displacement
// execution; it does not compact, so callers that leave a hole behind must
// close it themselves.
func (q *Queue) MoveToPosition(d *Delivery, target int) *OpError {
	if target < 1 || target > len(q.slots) {
		return errInvalidPosition(target, len(q.slots))
	}
	if q.slots[target-1] != nil {
		return errPositionOccupied(target)
	}
	if d.Position >= 1 && d.Position <= len(q.slots) && q.slots[d.Position-1] == d {
		q.slots[d.Position-1] = nil
	}
	q.place(d, target)
	return nil
}

// compact shifts every occupied slot toward the front until no internal
// gaps remain, preserving relative order and re-stamping positions.
func (q *Queue) compact() {
	write := 0
	for read := 0; read < len(q.slots); read++ {
		if q.slots[read] == nil {
			continue
		}
		if read != write {
			q.slots[write] = q.slots[read]
			q.slots[read] = nil
		}
		q.slots[write].Position = write + 1
		write++
	}
	q.mustBeContiguous()
}

// mustBeContiguous panics if an internal gap survived compaction. A gap
// here is a programming error, not a recoverable condition.
func (q *Queue) mustBeContiguous() {
	seenEmpty := false
	for i, d := range q.slots {
		if d == nil {
			seenEmpty = true
			continue
		}
		if seenEmpty {
			panic(fmt.Sprintf("queue gap before position %d", i+1))
		}
		if d.Position != i+1 {
			panic(fmt.Sprintf("position stamp %d at slot %d", d.Position, i+1))
		}
	}
}
