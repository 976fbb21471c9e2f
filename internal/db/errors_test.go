package db

import (
	"errors"
	"testing"
)

func TestMapDBErrorDuplicates(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"mysql duplicate entry", errors.New("Error 1062: Duplicate entry 'web-1' for key 'PRIMARY'")},
		{"postgres unique violation", errors.New("ERROR: duplicate key value violates unique constraint \"known_hosts_pkey\" (SQLSTATE 23505)")},
		{"sqlite unique constraint", errors.New("UNIQUE constraint failed: known_hosts.hostname")},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if mapped := MapDBError(c.err); !errors.Is(mapped, ErrDuplicate) {
				t.Fatalf("expected ErrDuplicate, got: %v", mapped)
			}
		})
	}
}

func TestMapDBErrorPassthrough(t *testing.T) {
	if MapDBError(nil) != nil {
		t.Fatal("nil must map to nil")
	}
	e := errors.New("connection reset by peer")
	mapped := MapDBError(e)
	if mapped == nil || errors.Is(mapped, ErrDuplicate) {
		t.Fatalf("unrelated error must pass through, got: %v", mapped)
	}
	if mapped.Error() != e.Error() {
		t.Fatalf("error must be unchanged, got: %v", mapped)
	}
}
