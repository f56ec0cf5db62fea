// Package resolver implements self-healing locator resolution: a step's
// declared target is matched against a page blueprint, falling back from the
// primary logical ID to progressively looser strategies so that a renamed
// identifier does not immediately fail the test.
package resolver

import (
	"github.com/iqap-dev/iqap-runner/blueprint"
)

// Strategy identifies which matching strategy produced a resolution.
type Strategy string

const (
	// StrategyPrimary means the target matched an element's logical ID exactly.
	StrategyPrimary Strategy = "primary"

	// StrategyFallbackText means the target matched an element's normalized
	// visible text.
	StrategyFallbackText Strategy = "fallback_text"

	// StrategyFallbackAttribute means the target matched some attribute value.
	StrategyFallbackAttribute Strategy = "fallback_attribute"

	// StrategyNotFound means no element matched at any level.
	StrategyNotFound Strategy = "not_found"
)

// IsFallback reports whether the strategy is a self-healing (non-primary) match.
func (s Strategy) IsFallback() bool {
	return s == StrategyFallbackText || s == StrategyFallbackAttribute
}

// Resolution is the outcome of resolving one target against a blueprint.
type Resolution struct {
	// Element is the matched descriptor; nil when Strategy is StrategyNotFound.
	Element *blueprint.ElementDescriptor

	// Strategy records how the element was found.
	Strategy Strategy

	// Ambiguous is set when several elements tied at the winning fallback
	// level. The smallest blueprint index wins; the tie is non-fatal but
	// reported so the coordinator can log it.
	Ambiguous bool

	// Candidates is the number of elements that matched at the winning level.
	Candidates int
}

// Found reports whether a concrete element was resolved.
func (r Resolution) Found() bool {
	return r.Element != nil
}

// Resolve matches a target against the blueprint.
//
// Order: exact logical ID first, then normalized visible text, then any
// attribute value. Ties at a fallback level resolve to the smallest blueprint
// index so results are deterministic for a given blueprint. Resolve is pure:
// it performs no I/O and never mutates the blueprint.
func Resolve(target string, bp *blueprint.UIBlueprint) Resolution {
	if bp == nil || target == "" {
		return Resolution{Strategy: StrategyNotFound}
	}

	for i := range bp.Elements {
		if bp.Elements[i].LogicalID == target {
			return Resolution{
				Element:    &bp.Elements[i],
				Strategy:   StrategyPrimary,
				Candidates: 1,
			}
		}
	}

	if res, ok := matchFallback(bp, StrategyFallbackText, func(el *blueprint.ElementDescriptor, norm string) bool {
		return el.VisibleText != "" && blueprint.NormalizeText(el.VisibleText) == norm
	}, target); ok {
		return res
	}

	if res, ok := matchFallback(bp, StrategyFallbackAttribute, func(el *blueprint.ElementDescriptor, norm string) bool {
		for _, v := range el.Attributes {
			if blueprint.NormalizeText(v) == norm {
				return true
			}
		}
		return false
	}, target); ok {
		return res
	}

	return Resolution{Strategy: StrategyNotFound}
}

// matchFallback collects all elements matching at one fallback level and
// picks the first by blueprint order.
func matchFallback(bp *blueprint.UIBlueprint, strategy Strategy, match func(*blueprint.ElementDescriptor, string) bool, target string) (Resolution, bool) {
	norm := blueprint.NormalizeText(target)
	if norm == "" {
		return Resolution{}, false
	}

	var first *blueprint.ElementDescriptor
	count := 0
	for i := range bp.Elements {
		if match(&bp.Elements[i], norm) {
			if first == nil {
				first = &bp.Elements[i]
			}
			count++
		}
	}

	if first == nil {
		return Resolution{}, false
	}

	return Resolution{
		Element:    first,
		Strategy:   strategy,
		Ambiguous:  count > 1,
		Candidates: count,
	}, true
}
