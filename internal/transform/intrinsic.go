// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package transform

import (
	"strconv"
	"strings"

	"github.com/conjugate/streamform/internal/model"
)

// intrinsicNames are the six submission-time call forms the evaluator
// recognizes and substitutes.
var intrinsicNames = []string{
	"getLocalMaxChannels",
	"getLocalChannel",
	"getAllMaxChannels",
	"getAllChannels",
	"getMaxChannels",
	"getChannel",
}

// evalIntrinsic substitutes every textually-embedded getChannel()-family
// call in exprText with its literal integer value for the given replica:
// it parses the string for balanced-parenthesis call sites with any of the
// six names, replaces each with its literal integer value, and leaves all
// other text untouched.
//
// Nested parallel regions whose width depends on an outer channel index are
// out of scope — only statically-known widths are supported, so
// getAllChannels/getAllMaxChannels resolve to the same single literal as
// getChannel/getMaxChannels rather than an array.
func evalIntrinsic(exprText string, channelIndex, maxChannels int64) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(exprText) {
		name, nameLen := matchIntrinsicName(exprText[i:])
		if name == "" {
			b.WriteByte(exprText[i])
			i++
			continue
		}
		callEnd, ok := matchBalancedCall(exprText, i+nameLen)
		if !ok {
			return "", model.NewFailure(model.IntrinsicEvalFailure,
				"unbalanced parentheses in call to %s at offset %d", name, i)
		}
		value := intrinsicValue(name, channelIndex, maxChannels)
		b.WriteString(strconv.FormatInt(value, 10))
		i = callEnd
	}
	return b.String(), nil
}

// evalSubscription evaluates a subscription property expression. It shares
// evalIntrinsic's getChannel()-family substitution; submission-time
// property references beyond channel/width are resolved by the host
// runtime before this function ever sees the text, so there is nothing
// further for this signature to substitute.
func evalSubscription(propertyText string, channelIndex, maxChannels int64) (string, error) {
	return evalIntrinsic(propertyText, channelIndex, maxChannels)
}

// UnresolvedCallSites scans exprText for balanced-parenthesis call sites
// whose head is a bare identifier that is not one of the six intrinsic
// names, returning each such name. The transform core itself never
// executes these — the substitution pass stays pure-Go and deterministic;
// callers that stage a sandbox.Registry of user toolkit functions use this
// at submission time to confirm every referenced name is registered before
// Run ever sees the application.
func UnresolvedCallSites(exprText string) []string {
	var names []string
	i := 0
	for i < len(exprText) {
		if !isIdentStart(exprText[i]) {
			i++
			continue
		}
		start := i
		for i < len(exprText) && isIdentPart(exprText[i]) {
			i++
		}
		name := exprText[start:i]
		if i >= len(exprText) || exprText[i] != '(' {
			continue
		}
		if _, n := matchIntrinsicName(exprText[start:]); n > 0 {
			continue
		}
		if _, ok := matchBalancedCall(exprText, i); ok {
			names = append(names, name)
		}
	}
	return names
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}

func intrinsicValue(name string, channelIndex, maxChannels int64) int64 {
	switch name {
	case "getChannel", "getLocalChannel", "getAllChannels":
		return channelIndex
	case "getMaxChannels", "getLocalMaxChannels", "getAllMaxChannels":
		return maxChannels
	default:
		return 0
	}
}

// matchIntrinsicName reports whether s begins with one of the six
// intrinsic names immediately followed by '(', returning the matched name
// and its length. Because the name must be followed directly by '(', no
// name can shadow another, so the order of intrinsicNames does not matter.
func matchIntrinsicName(s string) (string, int) {
	for _, name := range intrinsicNames {
		if strings.HasPrefix(s, name) && len(s) > len(name) && s[len(name)] == '(' {
			return name, len(name)
		}
	}
	return "", 0
}

// matchBalancedCall scans s starting at the opening '(' at index open and
// returns the index just past the matching ')'.
func matchBalancedCall(s string, open int) (int, bool) {
	if open >= len(s) || s[open] != '(' {
		return 0, false
	}
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}
