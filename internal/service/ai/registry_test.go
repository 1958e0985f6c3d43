package ai

import "testing"

func TestRegistryDefaultsToFirstModel(t *testing.T) {
	r := NewRegistry([]string{"gpt-4o", "gpt-4-turbo"})
	if got := r.Get(); got != "gpt-4o" {
		t.Fatalf("expected default gpt-4o, got %s", got)
	}
}

func TestRegistrySetValidates(t *testing.T) {
	r := NewRegistry([]string{"gpt-4o", "gpt-4-turbo"})

	if r.Set("gpt-5") {
		t.Fatalf("expected Set to fail for unknown model")
	}
	if got := r.Get(); got != "gpt-4o" {
		t.Fatalf("failed Set must not change selection, got %s", got)
	}

	if !r.Set("gpt-4-turbo") {
		t.Fatalf("expected Set to accept allow-listed model")
	}
	if got := r.Get(); got != "gpt-4-turbo" {
		t.Fatalf("expected gpt-4-turbo, got %s", got)
	}
}

func TestRegistryModelsIsACopy(t *testing.T) {
	r := NewRegistry([]string{"gpt-4o"})
	models := r.Models()
	models[0] = "mutated"
	if got := r.Models()[0]; got != "gpt-4o" {
		t.Fatalf("allow-list was mutated through Models(): %s", got)
	}
}
