package scaffold

import "testing"

// TestParseFramework verifies case-insensitive framework parsing
func TestParseFramework(t *testing.T) {
	cases := []struct {
		value string
		want  Framework
		ok    bool
	}{
		{"dotnet", FrameworkDotnet, true},
		{"React", FrameworkReact, true},
		{"VUE", FrameworkVue, true},
		{"  nuxt  ", FrameworkNuxt, true},
		{"JavaSpring", FrameworkJavaSpring, true},
		{"rails", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got, ok := ParseFramework(tc.value)
		if ok != tc.ok {
			t.Errorf("ParseFramework(%q) ok = %v, want %v", tc.value, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("ParseFramework(%q) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

// TestFrameworksFromParameters verifies framework extraction from request parameters
func TestFrameworksFromParameters(t *testing.T) {
	params := map[string]interface{}{
		"framework":         "react",
		"backendFramework":  "dotnet",
		"FRAMEWORK_EXTRA":   "not-a-framework",
		"databaseType":      "postgres",
		"frameworkVersion":  42, // non-string values are skipped
		"FrontendFramework": "Nuxt",
	}

	got := FrameworksFromParameters(params)

	want := map[Framework]bool{
		FrameworkReact:  true,
		FrameworkDotnet: true,
		FrameworkNuxt:   true,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d frameworks %v, want %d", len(got), got, len(want))
	}
	for _, fw := range got {
		if !want[fw] {
			t.Errorf("unexpected framework %q", fw)
		}
	}
}

// TestFrameworksFromParametersEmpty verifies no frameworks means an empty result
func TestFrameworksFromParametersEmpty(t *testing.T) {
	params := map[string]interface{}{
		"databaseType": "postgres",
		"region":       "westeurope",
	}

	if got := FrameworksFromParameters(params); len(got) != 0 {
		t.Fatalf("expected no frameworks, got %v", got)
	}
}

// TestGeneratorMappingClosed verifies every framework has a static generator
func TestGeneratorMappingClosed(t *testing.T) {
	for fw := range generators {
		gen := generators[fw]
		if gen.executable == "" {
			t.Errorf("framework %q has no executable", fw)
		}
		if len(gen.args) == 0 {
			t.Errorf("framework %q has no arguments", fw)
		}
	}
}
