package obligation

import (
	"testing"

	"github.com/talgya/courier/internal/ledger"
	"github.com/talgya/courier/internal/npc"
	"github.com/talgya/courier/internal/tuning"
)

func newTestDisplacer(capacity int) (*Displacer, *Queue, *ledger.Ledger) {
	q := NewQueue(capacity)
	book := ledger.New()
	return NewDisplacer(q, book, tuning.Default(), &EventLog{}), q, book
}

func TestCalculateRejectsBackwardMove(t *testing.T) {
	dc, q, _ := newTestDisplacer(8)
	a := newDelivery(1, 2, npc.ConnTrust, 10)
	b := newDelivery(2, 3, npc.ConnTrust, 10)
	q.Insert(a)
	q.Insert(b)

	if _, err := dc.Calculate(a.ID, 2); err == nil || err.Code != CodeBackwardDisplacement {
		t.Errorf("move 1 to 2 err %v, want backward_displacement_rejected", err)
	}
	if _, err := dc.Calculate(a.ID, 1); err == nil || err.Code != CodeBackwardDisplacement {
		t.Errorf("move 1 to 1 err %v, want backward_displacement_rejected", err)
	}
	if _, err := dc.Calculate(b.ID, 9); err == nil || err.Code != CodeInvalidPosition {
		t.Errorf("move to 9 err %v, want invalid_position", err)
	}
}

func TestCalculateChargesJumpPerVictim(t *testing.T) {
	dc, q, book := newTestDisplacer(8)

	ds := make([]*Delivery, 4)
	for i := range ds {
		ds[i] = newDelivery(npc.ID(i+1), 5, npc.ConnCommerce, 10)
		q.Insert(ds[i])
		book.Add(npc.ID(i+1), npc.ConnCommerce, 5)
	}

	// Moving position 4 to position 2 shifts the victims at 2 and 3; each
	// pays the full jump of 2 in its own connection.
	plan, err := dc.Calculate(ds[3].ID, 2)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if plan.Jump != 2 || len(plan.Shifts) != 2 {
		t.Fatalf("plan jump %d with %d shifts, want 2 and 2", plan.Jump, len(plan.Shifts))
	}
	for _, s := range plan.Shifts {
		if s.Cost != 2 {
			t.Errorf("shift cost %d, want 2", s.Cost)
		}
	}
	if plan.TotalCost() != 4 {
		t.Errorf("total cost %d, want 4", plan.TotalCost())
	}

	// Calculation is a preview; nothing is charged yet.
	if book.Balance(2, npc.ConnCommerce) != 5 {
		t.Error("preview mutated the ledger")
	}
}

func TestCalculateInsufficientVictim(t *testing.T) {
	dc, q, book := newTestDisplacer(8)

	broke := newDelivery(1, 5, npc.ConnShadow, 10)
	mover := newDelivery(2, 5, npc.ConnCommerce, 10)
	q.Insert(broke)
	q.Insert(mover)
	book.Add(1, npc.ConnShadow, 0)

	if _, err := dc.Calculate(mover.ID, 1); err == nil || err.Code != CodeInsufficientTokens {
		t.Errorf("err %v, want insufficient_tokens", err)
	}
}

func TestExecuteDisplacement(t *testing.T) {
	dc, q, book := newTestDisplacer(8)

	ds := make([]*Delivery, 4)
	for i := range ds {
		ds[i] = newDelivery(npc.ID(i+1), 5, npc.ConnCommerce, 10)
		q.Insert(ds[i])
		book.Add(npc.ID(i+1), npc.ConnCommerce, 5)
	}

	plan, err := dc.Calculate(ds[3].ID, 2)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if err := dc.Execute(plan, 0); err != nil {
		t.Fatalf("execute: %v", err)
	}

	wantOrder := []*Delivery{ds[0], ds[3], ds[1], ds[2]}
	for i, want := range wantOrder {
		if got := q.At(i + 1); got != want {
			t.Errorf("position %d holds %v, want %v", i+1, got.ID, want.ID)
		}
	}
	q.mustBeContiguous()

	for _, id := range []npc.ID{2, 3} {
		if got := book.Balance(id, npc.ConnCommerce); got != 3 {
			t.Errorf("victim %d balance %d, want 3", id, got)
		}
		if book.Burdens(id) != 1 {
			t.Errorf("victim %d burdens %d, want 1", id, book.Burdens(id))
		}
		if book.HistoryOf(id).Displaced != 1 {
			t.Errorf("victim %d displaced count %d, want 1", id, book.HistoryOf(id).Displaced)
		}
	}
	// The mover's sender pays nothing.
	if got := book.Balance(4, npc.ConnCommerce); got != 5 {
		t.Errorf("mover sender balance %d, want 5", got)
	}
}

func TestExecuteStalePlan(t *testing.T) {
	dc, q, book := newTestDisplacer(8)

	a := newDelivery(1, 5, npc.ConnCommerce, 10)
	b := newDelivery(2, 5, npc.ConnCommerce, 10)
	q.Insert(a)
	q.Insert(b)
	book.Add(1, npc.ConnCommerce, 5)

	plan, err := dc.Calculate(b.ID, 1)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	// The queue changed under the plan.
	if _, err := q.Remove(2); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := dc.Execute(plan, 0); err == nil || err.Code != CodeObligationNotFound {
		t.Errorf("stale execute err %v, want obligation_not_found", err)
	}
}

func TestExecuteRejectsReorderedVictims(t *testing.T) {
	dc, q, book := newTestDisplacer(8)

	ds := make([]*Delivery, 5)
	for i := range ds {
		ds[i] = newDelivery(npc.ID(i+1), 6, npc.ConnCommerce, 10)
		q.Insert(ds[i])
		book.Add(npc.ID(i+1), npc.ConnCommerce, 5)
	}

	plan, err := dc.Calculate(ds[3].ID, 2)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	// A swap behind the mover's back moves a planned victim out of its
	// slot without touching the mover.
	if err := q.Swap(2, 5); err != nil {
		t.Fatalf("swap: %v", err)
	}

	if err := dc.Execute(plan, 0); err == nil || err.Code != CodeObligationNotFound {
		t.Fatalf("reordered execute err %v, want obligation_not_found", err)
	}

	// Nobody paid and nothing moved.
	for i := 1; i <= 5; i++ {
		if got := book.Balance(npc.ID(i), npc.ConnCommerce); got != 5 {
			t.Errorf("sender %d balance %d after refused execute, want 5", i, got)
		}
		if book.Burdens(npc.ID(i)) != 0 {
			t.Errorf("sender %d carries a burden after refused execute", i)
		}
	}
	if q.At(2) != ds[4] || q.At(4) != ds[3] {
		t.Error("refused execute mutated the queue")
	}
}

func TestExecuteAutomaticEmptySlot(t *testing.T) {
	dc, q, _ := newTestDisplacer(8)

	d := newDelivery(1, 5, npc.ConnCommerce, 10)
	out := dc.ExecuteAutomatic(d, 1, ReasonForced, 0)
	if out.Kind != OutcomePlaced || out.Position != 1 {
		t.Errorf("outcome %+v, want placed at 1", out)
	}
	if q.At(1) != d || d.Reason != ReasonForced {
		t.Errorf("slot 1 holds %v with reason %q", q.At(1), d.Reason)
	}
}

func TestExecuteAutomaticCascadeBurnsCapped(t *testing.T) {
	dc, q, book := newTestDisplacer(8)
	cfg := tuning.Default()

	// Five occupants; forcing into 1 cascades all of them, a jump of 5,
	// but each burn is capped and clamped at a zero balance.
	for i := 1; i <= 5; i++ {
		q.Insert(newDelivery(npc.ID(i), 6, npc.ConnTrust, 10))
	}
	book.Add(1, npc.ConnTrust, 10)
	book.Add(2, npc.ConnTrust, 1)

	d := newDelivery(6, 1, npc.ConnStatus, 10)
	out := dc.ExecuteAutomatic(d, 1, ReasonForced, 0)
	if out.Kind != OutcomeDisplaced || out.Position != 1 {
		t.Fatalf("outcome %+v, want displaced at 1", out)
	}
	if len(out.Shifts) != 5 {
		t.Fatalf("%d shifts, want 5", len(out.Shifts))
	}

	if got := book.Balance(1, npc.ConnTrust); got != 10-cfg.AutoBurnCap {
		t.Errorf("rich victim balance %d, want %d", got, 10-cfg.AutoBurnCap)
	}
	if got := book.Balance(2, npc.ConnTrust); got != 0 {
		t.Errorf("poor victim balance %d, want clamped to 0", got)
	}
	if got := book.Balance(3, npc.ConnTrust); got != 0 {
		t.Errorf("broke victim balance %d, want 0", got)
	}
	q.mustBeContiguous()
}

func TestExecuteAutomaticFullQueueEvicts(t *testing.T) {
	dc, q, book := newTestDisplacer(8)
	cfg := tuning.Default()

	ds := make([]*Delivery, 8)
	for i := range ds {
		ds[i] = newDelivery(npc.ID(i+1), 9, npc.ConnCommerce, 10)
		q.Insert(ds[i])
		book.Add(npc.ID(i+1), npc.ConnCommerce, 5)
	}

	d := newDelivery(9, 1, npc.ConnStatus, 10)
	out := dc.ExecuteAutomatic(d, 1, ReasonForced, 0)

	if out.Kind != OutcomeEvicted || out.Position != 1 {
		t.Fatalf("outcome kind %d at %d, want evicted at 1", out.Kind, out.Position)
	}
	if out.Evicted != ds[7] || ds[7].Position != 0 {
		t.Fatalf("evicted %v at position %d, want the last occupant cleared", out.Evicted, ds[7].Position)
	}
	if out.EvictedBurn != cfg.AutoBurnCap {
		t.Errorf("evicted burn %d, want the cap of %d", out.EvictedBurn, cfg.AutoBurnCap)
	}

	// The evicted sender pays the overflow penalty and records an expiry.
	if got := book.Balance(8, npc.ConnCommerce); got != 5-cfg.AutoBurnCap {
		t.Errorf("evicted sender balance %d, want %d", got, 5-cfg.AutoBurnCap)
	}
	if book.Burdens(8) != 1 || book.HistoryOf(8).Expired != 1 {
		t.Errorf("evicted sender burdens %d expired %d, want 1 and 1", book.Burdens(8), book.HistoryOf(8).Expired)
	}

	// Everyone else shifted one later, capped burn applied.
	for i := 0; i < 7; i++ {
		if ds[i].Position != i+2 {
			t.Errorf("survivor %d at position %d, want %d", i, ds[i].Position, i+2)
		}
		if got := book.Balance(npc.ID(i+1), npc.ConnCommerce); got != 5-cfg.AutoBurnCap {
			t.Errorf("survivor %d balance %d, want %d", i, got, 5-cfg.AutoBurnCap)
		}
	}
	if q.At(1) != d {
		t.Error("forced obligation is not at position 1")
	}
	q.mustBeContiguous()
}
