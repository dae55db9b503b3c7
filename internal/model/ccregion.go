// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package model

// CCRegion is a consistent-cut region: a subgraph of primitive operators
// participating in the same coordinated checkpoint/drain protocol.
//
// Merging is disjoint-set union-find keyed by region index: mergedWith
// forms a tree, MergedRegion walks it to the root, and path compression is
// an implementation detail only.
type CCRegion struct {
	Index            uint64
	LogicalIndex     int
	IsOperatorDriven bool
	DrainTimeout     float64
	ResetTimeout     float64
	operators        map[uint64]bool // primitive operator index -> member
	mergedWith       *CCRegion       // non-owning; nil if this is canonical
}

// NewCCRegion constructs an empty region.
func NewCCRegion(index uint64, logicalIndex int, operatorDriven bool, drainTimeout, resetTimeout float64) *CCRegion {
	return &CCRegion{
		Index:            index,
		LogicalIndex:     logicalIndex,
		IsOperatorDriven: operatorDriven,
		DrainTimeout:     drainTimeout,
		ResetTimeout:     resetTimeout,
		operators:        make(map[uint64]bool),
	}
}

// AddOperator records a primitive operator as a member of this region.
func (r *CCRegion) AddOperator(operIndex uint64) { r.operators[operIndex] = true }

// Operators returns the member operator indices of this region's
// *own* set (not the merged union — call MergedRegion().Operators() for
// that after merging has run).
func (r *CCRegion) Operators() []uint64 {
	out := make([]uint64, 0, len(r.operators))
	for idx := range r.operators {
		out = append(out, idx)
	}
	return out
}

func (r *CCRegion) hasOperator(operIndex uint64) bool { return r.operators[operIndex] }

// WasMerged reports whether this region has been absorbed into another.
func (r *CCRegion) WasMerged() bool { return r.mergedWith != nil }

// MergedRegion walks the mergedWith chain to the canonical root, path
// a second call is always O(1) because the first call compresses the path.
func (r *CCRegion) MergedRegion() *CCRegion {
	if r.mergedWith == nil {
		return r
	}
	root := r.mergedWith.MergedRegion()
	r.mergedWith = root // path compression
	return root
}

// Merge joins the canonical regions of a and b: the canonical region's
// operator set becomes the union of both, timeouts are unified by keeping
// whichever side has the smaller LogicalIndex as canonical (conflicting
// annotations are resolved, not fatal), and the other side is abandoned
// (its mergedWith now points at the new canonical region).
//
// Merge is idempotent: merging the same (a, b) pair twice is a no-op the
// second time because by then they share a root.
func Merge(a, b *CCRegion) *CCRegion {
	ra, rb := a.MergedRegion(), b.MergedRegion()
	if ra == rb {
		return ra
	}
	canonical, absorbed := ra, rb
	if rb.LogicalIndex < ra.LogicalIndex {
		canonical, absorbed = rb, ra
	}
	for idx := range absorbed.operators {
		canonical.operators[idx] = true
	}
	absorbed.mergedWith = canonical
	return canonical
}

// CCInfo is a per-primitive-operator consistent-cut annotation.
type CCInfo struct {
	OperatorIndex   uint64
	IsStartOfRegion bool
	IsEndOfRegion   bool
	IsOblivious     bool
	Regions         []*CCRegion
	KeyValues       map[string]string
}

// NewCCInfo constructs an empty annotation for the given primitive operator.
func NewCCInfo(operatorIndex uint64) *CCInfo {
	return &CCInfo{OperatorIndex: operatorIndex, KeyValues: make(map[string]string)}
}

// AddedToRegion records that this operator ended up a member of region r
// during region discovery.
func (c *CCInfo) AddedToRegion(r *CCRegion) {
	for _, existing := range c.Regions {
		if existing == r {
			return
		}
	}
	c.Regions = append(c.Regions, r)
}

// IsMultiRegion reports whether this operator belongs to more than one
// (pre-merge) region — the trigger for transitive merging.
func (c *CCInfo) IsMultiRegion() bool { return len(c.Regions) > 1 }

// Canonicalize reduces Regions to the single canonical region every member
// now belongs to after merging, or leaves it empty if the operator is
// oblivious.
func (c *CCInfo) Canonicalize() {
	if c.IsOblivious || len(c.Regions) == 0 {
		c.Regions = nil
		return
	}
	c.Regions = []*CCRegion{c.Regions[0].MergedRegion()}
}
