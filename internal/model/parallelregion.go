// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package model

// ParallelRegion marks a composite operator for horizontal replication:
// every operator nested inside is replicated Width times.
type ParallelRegion struct {
	Index     uint64
	Width     int
	OperIndex uint64 // the composite operator that roots this region
	// ReplicateTags controls which hostpools get per-channel replicas:
	// a hostpool replicates under this region iff its ReplicateHostTags
	// intersects ReplicateTags.
	ReplicateTags map[string]bool
}

// NewParallelRegion constructs a region with the given width as passed; it
// does not check that width is positive, so callers validate width
// themselves and raise InvalidParallelWidth on failure.
func NewParallelRegion(index uint64, operIndex uint64, width int, replicateTags []string) *ParallelRegion {
	tags := make(map[string]bool, len(replicateTags))
	for _, t := range replicateTags {
		tags[t] = true
	}
	return &ParallelRegion{Index: index, Width: width, OperIndex: operIndex, ReplicateTags: tags}
}

// ReplicateTagSlice returns the region's replicate tags as a sorted-free
// slice, used when intersecting against a hostpool's tags.
func (r *ParallelRegion) ReplicateTagSlice() []string {
	out := make([]string, 0, len(r.ReplicateTags))
	for t := range r.ReplicateTags {
		out = append(out, t)
	}
	return out
}
