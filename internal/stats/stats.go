// Package stats reconciles the character affect values a model suggests after
// each turn with the previous snapshot. Models routinely emit absolute values,
// deltas, out-of-range numbers, or a one-element list where an object belongs;
// this package normalizes all of that under a configurable blending policy.
package stats

import (
	"github.com/mutsucloud/otogi/pkg/types"
)

// Policy selects how a suggested numeric value is blended with the previous
// one.
type Policy string

const (
	// PolicyOverride adopts the suggested value when it is non-zero; a zero
	// suggestion is treated as absent and keeps the previous value. This is
	// the default.
	PolicyOverride Policy = "override"
	// PolicyAdditive treats the suggested value as a delta on the previous
	// value.
	PolicyAdditive Policy = "additive"
)

// IsValid reports whether p is a known policy.
func (p Policy) IsValid() bool {
	return p == PolicyOverride || p == PolicyAdditive
}

// Bounds is the inclusive clamp range for one axis.
type Bounds struct {
	Min float64
	Max float64
}

// DefaultBounds clamps every axis to [0, 100].
var DefaultBounds = Bounds{Min: 0, Max: 100}

// ReconcilerConfig configures a Reconciler. Zero value means PolicyOverride
// with DefaultBounds on every axis.
type ReconcilerConfig struct {
	Policy Policy
	Bounds Bounds
}

// Reconciler merges suggested character status updates into prior state.
// Reconcile is pure; a Reconciler is safe for concurrent use.
type Reconciler struct {
	policy Policy
	bounds Bounds
}

// NewReconciler creates a Reconciler from cfg, applying defaults for unset
// fields.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	if !cfg.Policy.IsValid() {
		cfg.Policy = PolicyOverride
	}
	if cfg.Bounds == (Bounds{}) {
		cfg.Bounds = DefaultBounds
	}
	return &Reconciler{policy: cfg.Policy, bounds: cfg.Bounds}
}

// First normalizes a status that may arrive as a one-element list. An empty
// list yields the zero status.
func First(list []types.CharacterStatus) types.CharacterStatus {
	if len(list) == 0 {
		return types.CharacterStatus{}
	}
	return list[0]
}

// Reconcile blends suggested into prev. The four affect axes follow the
// configured policy and are clamped to the configured bounds; descriptive
// string fields adopt the suggested value when present and otherwise keep the
// previous one. A zero-value suggestion returns prev unchanged under either
// policy.
func (r *Reconciler) Reconcile(prev, suggested types.CharacterStatus) types.CharacterStatus {
	out := prev

	out.Affection = r.blend(prev.Affection, suggested.Affection)
	out.Monopoly = r.blend(prev.Monopoly, suggested.Monopoly)
	out.Yandere = r.blend(prev.Yandere, suggested.Yandere)
	out.Lust = r.blend(prev.Lust, suggested.Lust)

	out.Name = pick(suggested.Name, prev.Name)
	out.Clothing = pick(suggested.Clothing, prev.Clothing)
	out.Shoes = pick(suggested.Shoes, prev.Shoes)
	out.BodyState = pick(suggested.BodyState, prev.BodyState)
	out.LegState = pick(suggested.LegState, prev.LegState)
	out.InnerState = pick(suggested.InnerState, prev.InnerState)

	out.SexCount = pick(suggested.SexCount, prev.SexCount)
	return out
}

// blend applies the policy for one axis and clamps the result.
func (r *Reconciler) blend(prev, suggested float64) float64 {
	var v float64
	switch r.policy {
	case PolicyAdditive:
		v = prev + suggested
	default:
		if suggested == 0 {
			v = prev
		} else {
			v = suggested
		}
	}
	return r.clamp(v)
}

func (r *Reconciler) clamp(v float64) float64 {
	if v < r.bounds.Min {
		return r.bounds.Min
	}
	if v > r.bounds.Max {
		return r.bounds.Max
	}
	return v
}

// pick returns suggested when non-empty, else prev.
func pick(suggested, prev string) string {
	if suggested != "" {
		return suggested
	}
	return prev
}
