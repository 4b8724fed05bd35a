package postgres

import "testing"

func TestULIDGeneratorIsMonotonic(t *testing.T) {
	gen := NewULIDGenerator()

	prev := gen.Generate()
	for i := 0; i < 1000; i++ {
		next := gen.Generate()
		if len(next) != 26 {
			t.Fatalf("unexpected ULID length %d", len(next))
		}
		if next <= prev {
			t.Fatalf("ULIDs not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}
