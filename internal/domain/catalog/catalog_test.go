package catalog

import (
	"errors"
	"testing"

	"github.com/newsroom-hq/creditledger/internal/domain"
)

func TestDefault_KnownPlans(t *testing.T) {
	c := Default()

	tests := []struct {
		id      string
		credits int64
	}{
		{"trial", 60},
		{"starter", 150},
		{"growth", 575},
		{"scale", 2400},
	}
	for _, tt := range tests {
		p, err := c.Plan(tt.id)
		if err != nil {
			t.Fatalf("plan %s: unexpected error: %v", tt.id, err)
		}
		if p.MonthlyCredits != tt.credits {
			t.Errorf("plan %s: expected %d credits, got %d", tt.id, tt.credits, p.MonthlyCredits)
		}
	}
}

func TestPlan_Unknown(t *testing.T) {
	_, err := Default().Plan("platinum")
	if !errors.Is(err, domain.ErrUnknownPlan) {
		t.Fatalf("expected ErrUnknownPlan, got %v", err)
	}
}

func TestCost_Known(t *testing.T) {
	c := Default()

	cost, err := c.Cost("article_generation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cost != 5 {
		t.Errorf("expected 5, got %d", cost)
	}
}

func TestCost_Unknown(t *testing.T) {
	_, err := Default().Cost("mind_reading")
	if !errors.Is(err, domain.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestNew_Overrides(t *testing.T) {
	c := New(
		[]Plan{{ID: "custom", MonthlyCredits: 10}},
		map[string]int64{"custom_action": 7},
	)

	if _, err := c.Plan("starter"); !errors.Is(err, domain.ErrUnknownPlan) {
		t.Error("overridden catalog must not carry default plans")
	}
	p, err := c.Plan("custom")
	if err != nil || p.MonthlyCredits != 10 {
		t.Errorf("unexpected custom plan: %+v err=%v", p, err)
	}
	cost, err := c.Cost("custom_action")
	if err != nil || cost != 7 {
		t.Errorf("unexpected custom cost: %d err=%v", cost, err)
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default catalog must validate: %v", err)
	}

	bad := New(nil, map[string]int64{"free_lunch": 0})
	if err := bad.Validate(); err == nil {
		t.Fatal("zero-cost action must fail validation")
	}
}
