package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/mutsucloud/otogi/pkg/provider/imagegen"
	imgmock "github.com/mutsucloud/otogi/pkg/provider/imagegen/mock"
)

func TestImageFallback_Failover(t *testing.T) {
	primary := &imgmock.Provider{Err: errors.New("primary down")}
	secondary := &imgmock.Provider{
		Result: &imagegen.Result{ImageURL: "https://example.com/fallback.png", Model: "backup"},
	}

	fb := NewImageFallback(primary, "volcengine", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("openrouter", secondary)

	res, err := fb.Generate(context.Background(), imagegen.Request{Prompt: "rooftop at dusk"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ImageURL != "https://example.com/fallback.png" {
		t.Fatalf("ImageURL = %q", res.ImageURL)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Fatalf("calls: primary %d, secondary %d", primary.CallCount(), secondary.CallCount())
	}
}

func TestImageFallback_AllFail(t *testing.T) {
	primary := &imgmock.Provider{Err: errors.New("primary down")}
	secondary := &imgmock.Provider{Err: errors.New("secondary down")}

	fb := NewImageFallback(primary, "volcengine", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("openrouter", secondary)

	_, err := fb.Generate(context.Background(), imagegen.Request{Prompt: "x"})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
