package relay

import "testing"

func newRegisteredSession(t *testing.T, r *Registry, id string) *Session {
	t.Helper()
	s := NewSession(&nopTelephonyConn{}, Deps{Registry: r}, Config{})
	s.id = id
	if err := r.Register(s); err != nil {
		t.Fatalf("Register(%q) error = %v", id, err)
	}
	return s
}

type nopTelephonyConn struct{}

func (nopTelephonyConn) ReadMessage() ([]byte, error)   { return nil, nil }
func (nopTelephonyConn) WriteMessage(data []byte) error { return nil }
func (nopTelephonyConn) Close() error                   { return nil }

func TestRegistry_RegisterLookupUnregister(t *testing.T) {
	r := NewRegistry()

	s := newRegisteredSession(t, r, "SS1")

	got, ok := r.Lookup("SS1")
	if !ok || got != s {
		t.Fatalf("Lookup(SS1) = %v, %v; want session, true", got, ok)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	r.Unregister("SS1")
	if _, ok := r.Lookup("SS1"); ok {
		t.Error("Lookup(SS1) after Unregister = true, want false")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_DuplicateID(t *testing.T) {
	r := NewRegistry()
	newRegisteredSession(t, r, "SS1")

	dup := NewSession(&nopTelephonyConn{}, Deps{Registry: r}, Config{})
	dup.id = "SS1"
	if err := r.Register(dup); err == nil {
		t.Fatal("Register() with duplicate id = nil, want error")
	}
}

func TestRegistry_EmptyID(t *testing.T) {
	r := NewRegistry()
	s := NewSession(&nopTelephonyConn{}, Deps{Registry: r}, Config{})
	if err := r.Register(s); err == nil {
		t.Fatal("Register() with empty id = nil, want error")
	}
}

func TestRegistry_UnregisterAbsent(t *testing.T) {
	r := NewRegistry()
	r.Unregister("nope") // must not panic
}
