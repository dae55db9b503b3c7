// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package model

import "fmt"

// PoolMembership controls whether a hostpool's hosts may be shared with
// other applications.
type PoolMembership int

const (
	Shared PoolMembership = iota
	Exclusive
)

func (m PoolMembership) String() string {
	if m == Exclusive {
		return "Exclusive"
	}
	return "Shared"
}

// Hostpool is a named set of hosts/tags constraining where a PE may run.
type Hostpool struct {
	Index      uint64
	Name       string
	Size       int
	Membership PoolMembership
	Hosts      []string
	Tags       []string

	// ReplicateHostTags is the subset of Tags that should be intersected
	// with a parallel region's ReplicateTags when a replicated operator
	// references this pool.
	ReplicateHostTags []string

	// replicas is keyed by (regionIndex, channelIndex); populated lazily by
	// FindOrCreateReplica.
	replicas map[hostpoolReplicaKey]*Hostpool
}

type hostpoolReplicaKey struct {
	regionIndex  uint64
	channelIndex int64
}

// FindOrCreateReplica returns the derivative hostpool for (regionIndex,
// channelIndex), creating it on first request. A later request for the
// same key with a different intersectionTags set is a HostpoolConflict:
// the same replica key cannot mean two different tag sets.
func (h *Hostpool) FindOrCreateReplica(regionIndex uint64, channelIndex int64, intersectionTags []string, nextIndex func() uint64) (*Hostpool, error) {
	if h.replicas == nil {
		h.replicas = make(map[hostpoolReplicaKey]*Hostpool)
	}
	key := hostpoolReplicaKey{regionIndex, channelIndex}
	if existing, ok := h.replicas[key]; ok {
		if !sameTagSet(existing.Tags, intersectionTags) {
			return nil, NewFailure(HostpoolConflict,
				"hostpool %q replica (region=%d, channel=%d) already created with tags %v, requested %v",
				h.Name, regionIndex, channelIndex, existing.Tags, intersectionTags)
		}
		return existing, nil
	}
	replica := &Hostpool{
		Index:      nextIndex(),
		Name:       fmt.Sprintf("%s@(%d,%d)", h.Name, regionIndex, channelIndex),
		Size:       h.Size,
		Membership: h.Membership,
		Hosts:      append([]string(nil), h.Hosts...),
		Tags:       append([]string(nil), intersectionTags...),
	}
	h.replicas[key] = replica
	return replica, nil
}

func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, t := range a {
		seen[t] = true
	}
	for _, t := range b {
		if !seen[t] {
			return false
		}
	}
	return true
}

// IntersectTags returns the tags shared between this pool's
// ReplicateHostTags and a parallel region's replicate tag set.
func (h *Hostpool) IntersectTags(regionTags []string) []string {
	set := make(map[string]bool, len(regionTags))
	for _, t := range regionTags {
		set[t] = true
	}
	var out []string
	for _, t := range h.ReplicateHostTags {
		if set[t] {
			out = append(out, t)
		}
	}
	return out
}

// ImportedStream describes how an operator name resolves to an imported
// stream. NameBased imports match by application/stream name; PropertyBased
// imports match by a set of subscription properties evaluated at
// submission time against evalSubscription.
type ImportedStream struct {
	OperatorName string
	NameBased    bool
	// NameBased fields
	ApplicationName string
	StreamName      string
	// PropertyBased fields
	SubscriptionExpr string
}

// ExportedStream describes the stream an export pseudo-operator publishes.
type ExportedStream struct {
	OperatorName string
	StreamName   string
	Properties   map[string]string
}
