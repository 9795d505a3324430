package daemon

import "testing"

func TestMatcherIgnoresConfiguredPatterns(t *testing.T) {
	m := newMatcher([]string{".git/", "*.swp", "node_modules/"})

	cases := map[string]bool{
		".git/HEAD":             true,
		"src/main.go":           false,
		"scratch.swp":           true,
		"node_modules/left-pad": true,
		"README.md":             false,
	}
	for path, want := range cases {
		if got := m.ignoresPath(path); got != want {
			t.Errorf("ignoresPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestMatcherNilIsPermissive(t *testing.T) {
	var m *matcher
	if m.ignoresPath("anything") {
		t.Fatal("a nil matcher should ignore nothing")
	}
}

func TestIsVCSMetadata(t *testing.T) {
	cases := map[string]bool{
		".git/HEAD": true,
		".git":      true,
		"src/.git":  false,
		"main.go":   false,
	}
	for path, want := range cases {
		if got := isVCSMetadata(path); got != want {
			t.Errorf("isVCSMetadata(%q) = %v, want %v", path, got, want)
		}
	}
}
