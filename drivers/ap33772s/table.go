package ap33772s

import "iter"

// Table is the ordered set of decoded PDOs for one negotiation session.
// Insertion order is slot position order (1-based). The table owns its
// entries; selection helpers hand them out read-only.
type Table struct {
	entries []PDO
}

func (t *Table) add(p PDO) { t.entries = append(t.entries, p) }

// Len returns the number of decoded slots, detected or not.
func (t *Table) Len() int { return len(t.entries) }

// At returns the PDO at the given slot position, if that slot decoded.
func (t *Table) At(pos Position) (PDO, bool) {
	for _, p := range t.entries {
		if p.Position() == pos {
			return p, true
		}
	}
	return nil, false
}

// All iterates every decoded slot in position order.
func (t *Table) All() iter.Seq[PDO] {
	return func(yield func(PDO) bool) {
		for _, p := range t.entries {
			if !yield(p) {
				return
			}
		}
	}
}

// Detected iterates only the slots the source currently advertises, in
// position order. The sequence is restartable; each call walks the table
// afresh.
func (t *Table) Detected() iter.Seq[PDO] {
	return func(yield func(PDO) bool) {
		for _, p := range t.entries {
			if !p.Detected() {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

// FindAdjustable selects, among detected adjustable PDOs, the one whose
// resolved range contains v with max current at least i. Qualifying entries
// are ranked tightest-fit first (smallest voltage span that still satisfies
// the target); equal spans fall back to the lowest slot position. A slot
// whose range fails to resolve is skipped, not fatal. No qualifying entry is
// reported as ok == false, never as an error: falling back to a fixed supply
// is the caller's decision.
func (t *Table) FindAdjustable(v Millivolts, i Milliamps) (Adjustable, bool) {
	var best Adjustable
	var bestWidth Millivolts
	for p := range t.Detected() {
		adj, ok := p.(Adjustable)
		if !ok {
			continue
		}
		rng, err := Resolve(adj)
		if err != nil {
			continue
		}
		if !rng.Contains(v) || rng.MaxCurrent < i {
			continue
		}
		if best == nil || rng.Width() < bestWidth {
			best = adj
			bestWidth = rng.Width()
		}
	}
	return best, best != nil
}

// FindFixed selects the first detected fixed supply whose voltage matches v
// within one resolution step and whose max current is at least i.
func (t *Table) FindFixed(v Millivolts, i Milliamps) (FixedSupply, bool) {
	for p := range t.Detected() {
		f, ok := p.(FixedSupply)
		if !ok {
			continue
		}
		if !withinOneStep(f.Voltage(), v, f.Class().VoltageStep()) {
			continue
		}
		if f.MaxCurrent() < i {
			continue
		}
		return f, true
	}
	return FixedSupply{}, false
}

// FindBestFor picks the capability slot to request for a target voltage and
// current: the tightest-fitting adjustable entry when one qualifies,
// otherwise an exact-voltage fixed supply. ok == false means the source
// offers nothing suitable.
func (t *Table) FindBestFor(v Millivolts, i Milliamps) (PDO, bool) {
	if adj, ok := t.FindAdjustable(v, i); ok {
		return adj, true
	}
	if f, ok := t.FindFixed(v, i); ok {
		return f, true
	}
	return nil, false
}
