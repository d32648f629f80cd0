package lifecycle

import (
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func TestManager_ClosesInReverseOrder(t *testing.T) {
	m := NewManager(zerolog.Nop())
	var order []string
	for _, name := range []string{"metrics", "origin", "server"} {
		name := name
		m.RegisterFunc(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"server", "origin", "metrics"}; !reflect.DeepEqual(order, want) {
		t.Errorf("close order = %v, want %v", order, want)
	}
}

func TestManager_ContinuesAfterFailure(t *testing.T) {
	m := NewManager(zerolog.Nop())
	first := errors.New("first")
	second := errors.New("second")
	calls := 0

	m.RegisterFunc("a", func() error { calls++; return first })
	m.RegisterFunc("b", func() error { calls++; return nil })
	m.RegisterFunc("c", func() error { calls++; return second })

	err := m.Close()
	if calls != 3 {
		t.Errorf("expected all 3 closers to run, got %d", calls)
	}
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Errorf("expected both errors joined, got %v", err)
	}
}

func TestManager_CloseTwice(t *testing.T) {
	m := NewManager(zerolog.Nop())
	calls := 0
	m.RegisterFunc("once", func() error { calls++; return nil })

	_ = m.Close()
	_ = m.Close()

	if calls != 1 {
		t.Errorf("expected closer to run once, got %d", calls)
	}
}
