package observer

import "testing"

func TestToSet(t *testing.T) {
	set := toSet([]string{"alice", "bob", "alice"})
	if len(set) != 2 {
		t.Fatalf("len(set) = %d, want 2 (deduplicated)", len(set))
	}
	if !set["alice"] || !set["bob"] {
		t.Errorf("set = %v, want alice and bob present", set)
	}
	if set["carol"] {
		t.Errorf("set reports carol present, want absent")
	}
}

func TestToSetEmpty(t *testing.T) {
	set := toSet(nil)
	if len(set) != 0 {
		t.Errorf("len(set) = %d, want 0 for nil input", len(set))
	}
}
