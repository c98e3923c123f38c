package speech

import "testing"

func TestVoiceResolver_Resolve(t *testing.T) {
	t.Parallel()

	cat := DefaultCatalog()
	r := NewVoiceResolver(cat, map[string]string{"alice": "sv-SE-Wavenet-A"})

	tests := []struct {
		name    string
		speaker string
		loc     Locale
		want    Voice
	}{
		{"mapped speaker primary", "alice", cat.Primary(), Voice{"sv-SE", "sv-SE-Wavenet-A"}},
		{"unmapped speaker primary", "bob", cat.Primary(), Voice{"sv-SE", "sv-SE-Wavenet-C"}},
		{"mapped speaker secondary overrides", "alice", cat.Secondary(), Voice{"en-US", "en-US-Wavenet-C"}},
		{"unmapped speaker secondary", "bob", cat.Secondary(), Voice{"en-US", "en-US-Wavenet-C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := r.Resolve(tt.speaker, tt.loc); got != tt.want {
				t.Errorf("Resolve = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestVoiceResolver_SetVoicesReplacesMapping(t *testing.T) {
	t.Parallel()

	cat := DefaultCatalog()
	src := map[string]string{"alice": "v1"}
	r := NewVoiceResolver(cat, src)

	// Mutating the caller's map must not leak into the resolver.
	src["alice"] = "mutated"
	if got := r.Resolve("alice", cat.Primary()).Name; got != "v1" {
		t.Errorf("voice = %q, want v1", got)
	}

	r.SetVoices(map[string]string{"bob": "v2"})
	if got := r.Resolve("alice", cat.Primary()).Name; got != cat.Primary().Voice {
		t.Errorf("alice after reload = %q, want default", got)
	}
	if got := r.Resolve("bob", cat.Primary()).Name; got != "v2" {
		t.Errorf("bob after reload = %q, want v2", got)
	}
}

func TestVoiceResolver_NilMapping(t *testing.T) {
	t.Parallel()

	cat := DefaultCatalog()
	r := NewVoiceResolver(cat, nil)
	if got := r.Resolve("anyone", cat.Primary()); got.Name != cat.Primary().Voice {
		t.Errorf("Resolve = %+v, want default primary voice", got)
	}
}
