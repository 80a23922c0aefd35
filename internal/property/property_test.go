package property

import "testing"

func TestEnumCanonicalization(t *testing.T) {
	p := NewEnum("syncMode", "sync direction", [][]string{
		{"two-way"},
		{"refresh-from-client", "refresh-client", "refresh"},
	}, false)

	for _, alias := range []string{"REFRESH", "Refresh-Client", "refresh-from-client"} {
		if err := p.Check(alias); err != nil {
			t.Fatalf("Check(%q) = %v, want nil", alias, err)
		}
		if got := p.Canonicalize(alias); got != "refresh-from-client" {
			t.Errorf("Canonicalize(%q) = %q, want refresh-from-client", alias, got)
		}
	}

	if err := p.Check("bogus"); err == nil {
		t.Error("Check(bogus) = nil, want error")
	}
}

func TestBoolCanonicalization(t *testing.T) {
	p := NewBool("loglevel", "", false)
	for _, in := range []string{"t", "TRUE", "T", "1"} {
		if p.Canonicalize(in) != "1" {
			t.Errorf("Canonicalize(%q) = %q, want 1", in, p.Canonicalize(in))
		}
	}
	for _, in := range []string{"f", "FALSE", "0"} {
		if p.Canonicalize(in) != "0" {
			t.Errorf("Canonicalize(%q) = %q, want 0", in, p.Canonicalize(in))
		}
	}
	if err := p.Check("maybe"); err == nil {
		t.Error("Check(maybe) = nil, want error")
	}
}

func TestResolvePassword(t *testing.T) {
	t.Setenv("SYNC_PW", "s3cret")

	if v, prompt := ResolvePassword("-"); !prompt || v != "" {
		t.Errorf("ResolvePassword(-) = (%q, %v), want (\"\", true)", v, prompt)
	}
	if v, prompt := ResolvePassword(""); !prompt || v != "" {
		t.Errorf("ResolvePassword(\"\") = (%q, %v), want (\"\", true)", v, prompt)
	}
	if v, prompt := ResolvePassword("${SYNC_PW}"); prompt || v != "s3cret" {
		t.Errorf("ResolvePassword(${SYNC_PW}) = (%q, %v), want (s3cret, false)", v, prompt)
	}
	if v, prompt := ResolvePassword("literal"); prompt || v != "literal" {
		t.Errorf("ResolvePassword(literal) = (%q, %v), want (literal, false)", v, prompt)
	}
}

type fakeNode struct {
	values map[string]string
}

func (f *fakeNode) Read(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeNode) Write(key, value, comment string, isDefault bool) {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = value
}

func TestRegistryDefaultAndRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.Register(NewInt("autoSyncInterval", "seconds between auto-sync attempts", 1800))

	node := &fakeNode{}
	if got := r.Get(node, "autoSyncInterval"); got != "1800" {
		t.Errorf("Get on unset key = %q, want default 1800", got)
	}

	node.Write("autoSyncInterval", "60", "", false)
	if got := r.Get(node, "autoSyncInterval"); got != "60" {
		t.Errorf("Get after write = %q, want 60", got)
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(New("username", "", "", false))

	defer func() {
		if recover() == nil {
			t.Error("Register duplicate name did not panic")
		}
	}()
	r.Register(New("username", "", "", false))
}

func TestRegistryCaseInsensitiveLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(New("syncURL", "", "", true))

	if _, ok := r.Lookup("SYNCURL"); !ok {
		t.Error("Lookup is not case-insensitive")
	}
}
