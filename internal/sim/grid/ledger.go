// Package grid is the committed land state: map dimensions, granted parcels
// and the owner set. It does arithmetic and storage only; deciding whether a
// change is authorized belongs to the land manager.
package grid

import (
	"errors"
	"fmt"

	"landvote.ai/internal/protocol"
)

var ErrInvariantViolation = protocol.NewRuleError(protocol.ErrInvariantViolation, "ledger invariant violation")

type Grant struct {
	Owner string `json:"owner"`
	Rect  Rect   `json:"rect"`
}

type Ledger struct {
	width  int
	height int

	grants []Grant

	// owners keeps first-grant order; ownerSet mirrors it for lookups.
	owners   []string
	ownerSet map[string]struct{}
}

func NewLedger(width, height int) (*Ledger, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid: dimensions must be positive, got %dx%d", width, height)
	}
	return &Ledger{
		width:    width,
		height:   height,
		ownerSet: map[string]struct{}{},
	}, nil
}

func (l *Ledger) Width() int  { return l.width }
func (l *Ledger) Height() int { return l.height }

// WithinBounds reports whether the normalized rectangle lies inside
// [0,width]x[0,height].
func (l *Ledger) WithinBounds(r Rect) bool {
	n := r.Normalize()
	return n.X1 >= 0 && n.Y1 >= 0 && n.X2 <= l.width && n.Y2 <= l.height
}

// Overlaps reports whether r intersects any granted parcel.
func (l *Ledger) Overlaps(r Rect) bool {
	_, ok := l.FirstOverlap(r)
	return ok
}

// FirstOverlap returns the earliest grant whose parcel intersects r.
func (l *Ledger) FirstOverlap(r Rect) (Grant, bool) {
	for _, g := range l.grants {
		if g.Rect.Intersects(r) {
			return g, true
		}
	}
	return Grant{}, false
}

// CommitGrant records a parcel for owner. Callers validate first; a commit
// that would break the bounds or non-overlap invariants is refused.
func (l *Ledger) CommitGrant(owner string, r Rect) error {
	r = r.Normalize()
	if owner == "" {
		return fmt.Errorf("commit grant: empty owner: %w", ErrInvariantViolation)
	}
	if r.Empty() {
		return fmt.Errorf("commit grant %s: empty parcel: %w", r, ErrInvariantViolation)
	}
	if !l.WithinBounds(r) {
		return fmt.Errorf("commit grant %s: outside %dx%d: %w", r, l.width, l.height, ErrInvariantViolation)
	}
	if g, ok := l.FirstOverlap(r); ok {
		return fmt.Errorf("commit grant %s: overlaps %s owned by %s: %w", r, g.Rect, g.Owner, ErrInvariantViolation)
	}
	l.grants = append(l.grants, Grant{Owner: owner, Rect: r})
	l.addOwner(owner)
	return nil
}

// Extend grows the map; it never shrinks.
func (l *Ledger) Extend(width, height int) {
	if width > l.width {
		l.width = width
	}
	if height > l.height {
		l.height = height
	}
}

// Grows reports whether Extend(width,height) would change the dimensions.
func (l *Ledger) Grows(width, height int) bool {
	return width > l.width || height > l.height
}

func (l *Ledger) Grants() []Grant {
	out := make([]Grant, len(l.grants))
	copy(out, l.grants)
	return out
}

func (l *Ledger) NumGrants() int { return len(l.grants) }

// Owners returns distinct owners in order of their first grant.
func (l *Ledger) Owners() []string {
	out := make([]string, len(l.owners))
	copy(out, l.owners)
	return out
}

func (l *Ledger) IsOwner(id string) bool {
	_, ok := l.ownerSet[id]
	return ok
}

func (l *Ledger) addOwner(id string) {
	if _, ok := l.ownerSet[id]; ok {
		return
	}
	l.ownerSet[id] = struct{}{}
	l.owners = append(l.owners, id)
}

// Restore rebuilds a ledger from exported state, re-checking every invariant.
func Restore(width, height int, grants []Grant) (*Ledger, error) {
	l, err := NewLedger(width, height)
	if err != nil {
		return nil, err
	}
	for i, g := range grants {
		if err := l.CommitGrant(g.Owner, g.Rect); err != nil {
			return nil, fmt.Errorf("restore grant %d: %w", i, err)
		}
	}
	return l, nil
}

// IsInvariantViolation reports whether err came from a refused commit.
func IsInvariantViolation(err error) bool { return errors.Is(err, ErrInvariantViolation) }
