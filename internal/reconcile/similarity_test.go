package reconcile

import "testing"

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"exact", "Acme Ltd", "Acme Ltd", 1.0},
		{"case and punctuation", "ACME, Ltd.", "acme ltd", 1.0},
		{"substring", "Acme", "Acme Supplies Ltd", 0.8},
		{"substring reversed", "Acme Supplies Ltd", "Acme", 0.8},
		{"no overlap", "Acme Ltd", "Globex Corp", 0.0},
		{"empty side", "", "Acme", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NameSimilarity(tt.a, tt.b); got != tt.want {
				t.Errorf("NameSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestNameSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"Acme Office Supplies", "Acme Supplies International"},
		{"Northwind Traders", "Northwind Trading Co"},
		{"Acme", "Acme Supplies Ltd"},
	}
	for _, p := range pairs {
		ab := NameSimilarity(p[0], p[1])
		ba := NameSimilarity(p[1], p[0])
		if ab != ba {
			t.Errorf("NameSimilarity not symmetric for %q/%q: %v vs %v", p[0], p[1], ab, ba)
		}
	}
}

func TestNameSimilarity_WordOverlapRange(t *testing.T) {
	// Partial word overlap lands in [0.2, 0.6].
	got := NameSimilarity("Acme Office Supplies", "Acme Industrial Supplies Group")
	if got < 0.2 || got > 0.6 {
		t.Errorf("NameSimilarity = %v, want within [0.2, 0.6]", got)
	}
}
