// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalIntrinsic_SubstitutesEachCallForm(t *testing.T) {
	cases := []struct {
		name string
		expr string
		want string
	}{
		{"getChannel", "prefix_$getChannel()_suffix", "prefix_$3_suffix"},
		{"getLocalChannel", "$getLocalChannel()", "$3"},
		{"getAllChannels", "$getAllChannels()", "$3"},
		{"getMaxChannels", "$getMaxChannels()", "$8"},
		{"getLocalMaxChannels", "$getLocalMaxChannels()", "$8"},
		{"getAllMaxChannels", "$getAllMaxChannels()", "$8"},
		{"two calls", "$getChannel()-of-$getMaxChannels()", "$3-of-$8"},
		{"no calls", "plain text, no intrinsics here", "plain text, no intrinsics here"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := evalIntrinsic(tc.expr, 3, 8)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvalIntrinsic_UnbalancedParens(t *testing.T) {
	_, err := evalIntrinsic("$getChannel(", 0, 1)
	assert.Error(t, err)
}

func TestEvalSubscription_SharesIntrinsicGrammar(t *testing.T) {
	got, err := evalSubscription("channel=getChannel()", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, "channel=2", got)
}

func TestUnresolvedCallSites_IgnoresIntrinsicsFindsCustomToolkitCalls(t *testing.T) {
	sites := UnresolvedCallSites("myToolkitFn(getChannel(), x) + anotherFn()")
	assert.ElementsMatch(t, []string{"myToolkitFn", "anotherFn"}, sites)
}

func TestUnresolvedCallSites_NoCallsReturnsEmpty(t *testing.T) {
	assert.Empty(t, UnresolvedCallSites("plain expression with no calls"))
}

func TestUnresolvedCallSites_BareIdentifierIsNotACall(t *testing.T) {
	assert.Empty(t, UnresolvedCallSites("someIdentifier + 1"))
}
