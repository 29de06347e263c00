package stats_test

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/mutsucloud/otogi/internal/stats"
	"github.com/mutsucloud/otogi/pkg/types"
)

func TestReconcile_OverrideDefault(t *testing.T) {
	t.Parallel()

	r := stats.NewReconciler(stats.ReconcilerConfig{})
	prev := types.CharacterStatus{
		Name:      "Rei",
		Clothing:  "uniform",
		Affection: 40,
		Monopoly:  10,
	}
	suggested := types.CharacterStatus{
		Affection: 55,
		Lust:      5,
		Clothing:  "casual wear",
	}

	got := r.Reconcile(prev, suggested)
	if got.Affection != 55 {
		t.Errorf("Affection = %v, want 55 (override)", got.Affection)
	}
	if got.Monopoly != 10 {
		t.Errorf("Monopoly = %v, want 10 kept (zero suggestion is absent)", got.Monopoly)
	}
	if got.Lust != 5 {
		t.Errorf("Lust = %v, want 5", got.Lust)
	}
	if got.Clothing != "casual wear" {
		t.Errorf("Clothing = %q, want suggested value", got.Clothing)
	}
	if got.Name != "Rei" {
		t.Errorf("Name = %q, want previous value kept", got.Name)
	}
}

// SexCount is a descriptive string like the clothing fields, not a numeric
// axis; the suggested value wins only when non-empty.
func TestReconcile_SexCountIsDescriptive(t *testing.T) {
	t.Parallel()

	r := stats.NewReconciler(stats.ReconcilerConfig{})
	prev := types.CharacterStatus{SexCount: "2"}

	got := r.Reconcile(prev, types.CharacterStatus{})
	if got.SexCount != "2" {
		t.Errorf("SexCount = %q, want previous value kept for empty suggestion", got.SexCount)
	}
	got = r.Reconcile(prev, types.CharacterStatus{SexCount: "3"})
	if got.SexCount != "3" {
		t.Errorf("SexCount = %q, want suggested value adopted", got.SexCount)
	}
}

func TestReconcile_Additive(t *testing.T) {
	t.Parallel()

	r := stats.NewReconciler(stats.ReconcilerConfig{Policy: stats.PolicyAdditive})
	prev := types.CharacterStatus{Affection: 40, Yandere: 95}
	suggested := types.CharacterStatus{Affection: 10, Yandere: 20}

	got := r.Reconcile(prev, suggested)
	if got.Affection != 50 {
		t.Errorf("Affection = %v, want 50", got.Affection)
	}
	if got.Yandere != 100 {
		t.Errorf("Yandere = %v, want clamped to 100", got.Yandere)
	}
}

func TestReconcile_ClampBounds(t *testing.T) {
	t.Parallel()

	r := stats.NewReconciler(stats.ReconcilerConfig{
		Policy: stats.PolicyAdditive,
		Bounds: stats.Bounds{Min: -100, Max: 100},
	})
	prev := types.CharacterStatus{Affection: -90}
	got := r.Reconcile(prev, types.CharacterStatus{Affection: -30})
	if got.Affection != -100 {
		t.Errorf("Affection = %v, want clamped to -100", got.Affection)
	}
}

func TestFirst(t *testing.T) {
	t.Parallel()

	if got := stats.First(nil); got != (types.CharacterStatus{}) {
		t.Errorf("First(nil) = %+v, want zero status", got)
	}
	list := []types.CharacterStatus{{Name: "a"}, {Name: "b"}}
	if got := stats.First(list); got.Name != "a" {
		t.Errorf("First = %+v, want first element", got)
	}
}

// A zero-value suggestion must leave the status unchanged under either policy.
func TestReconcile_ZeroDeltaIdempotent(t *testing.T) {
	t.Parallel()

	for _, policy := range []stats.Policy{stats.PolicyOverride, stats.PolicyAdditive} {
		policy := policy
		t.Run(string(policy), func(t *testing.T) {
			t.Parallel()
			rapid.Check(t, func(rt *rapid.T) {
				r := stats.NewReconciler(stats.ReconcilerConfig{Policy: policy})
				prev := types.CharacterStatus{
					Name:      rapid.StringN(0, 12, -1).Draw(rt, "name"),
					Clothing:  rapid.StringN(0, 12, -1).Draw(rt, "clothing"),
					Affection: float64(rapid.IntRange(0, 100).Draw(rt, "affection")),
					Monopoly:  float64(rapid.IntRange(0, 100).Draw(rt, "monopoly")),
					Yandere:   float64(rapid.IntRange(0, 100).Draw(rt, "yandere")),
					Lust:      float64(rapid.IntRange(0, 100).Draw(rt, "lust")),
					SexCount:  rapid.StringN(0, 4, -1).Draw(rt, "sexCount"),
				}
				got := r.Reconcile(prev, types.CharacterStatus{})
				if got != prev {
					rt.Fatalf("Reconcile(prev, zero) = %+v, want %+v", got, prev)
				}
			})
		})
	}
}
