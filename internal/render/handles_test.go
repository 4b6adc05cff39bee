package render

import "testing"

func TestHandleRegistryEnsureCreatesOnce(t *testing.T) {
	registry := NewHandleRegistry[string]()
	calls := 0
	create := func(key AgentKey) string {
		calls++
		return "handle"
	}

	key := AgentKey{Generation: 2, ID: 7}
	first := registry.Ensure(key, create)
	second := registry.Ensure(key, create)
	if first != "handle" || second != "handle" {
		t.Fatalf("unexpected handles: %q %q", first, second)
	}
	if calls != 1 {
		t.Fatalf("expected one create call, got %d", calls)
	}

	if _, ok := registry.Get(AgentKey{Generation: 3, ID: 7}); ok {
		t.Fatal("same id in another generation must be a different agent")
	}
}

func TestHandleRegistryPruneAndDelete(t *testing.T) {
	registry := NewHandleRegistry[int]()
	for gen := 0; gen < 3; gen++ {
		for id := 0; id < 2; id++ {
			registry.Ensure(AgentKey{Generation: gen, ID: id}, func(k AgentKey) int { return k.ID })
		}
	}
	if registry.Len() != 6 {
		t.Fatalf("expected 6 handles, got %d", registry.Len())
	}

	if removed := registry.Prune(2); removed != 4 {
		t.Fatalf("expected 4 pruned handles, got %d", removed)
	}
	if _, ok := registry.Get(AgentKey{Generation: 2, ID: 1}); !ok {
		t.Fatal("expected current generation handle to survive")
	}

	registry.Delete(AgentKey{Generation: 2, ID: 1})
	if registry.Len() != 1 {
		t.Fatalf("expected 1 handle after delete, got %d", registry.Len())
	}
}
