package classify

import (
	"math"
	"testing"
)

func TestComputeABCBoundaryScenario(t *testing.T) {
	// P1 carries 80% alone, P2 takes cumulative to 95%, P3 is the tail.
	metrics := []ProductMetric{
		{ProductID: 1, Name: "P1", Revenue: 800},
		{ProductID: 2, Name: "P2", Revenue: 150},
		{ProductID: 3, Name: "P3", Revenue: 50},
	}
	entries := ComputeABC(metrics)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []ABCClass{ClassA, ClassB, ClassC}
	for i, entry := range entries {
		if entry.Class != want[i] {
			t.Fatalf("entry %d (%s): expected class %s got %s", i, entry.Name, want[i], entry.Class)
		}
	}
	if entries[0].Share != 0.8 {
		t.Fatalf("expected P1 share 0.8, got %.4f", entries[0].Share)
	}
	if entries[2].CumulativeShare != 1.0 {
		t.Fatalf("expected final cumulative share 1.0, got %.4f", entries[2].CumulativeShare)
	}
}

func TestComputeABCSingleProductIsA(t *testing.T) {
	entries := ComputeABC([]ProductMetric{{ProductID: 7, Name: "Only", Revenue: 123}})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Class != ClassA {
		t.Fatalf("a product carrying all revenue must be A, got %s", entries[0].Class)
	}
}

func TestComputeABCEmptyInput(t *testing.T) {
	if entries := ComputeABC(nil); len(entries) != 0 {
		t.Fatalf("expected empty result, got %d entries", len(entries))
	}
}

func TestComputeABCEveryProductClassified(t *testing.T) {
	metrics := []ProductMetric{
		{ProductID: 1, Revenue: 500},
		{ProductID: 2, Revenue: 300},
		{ProductID: 3, Revenue: 100},
		{ProductID: 4, Revenue: 60},
		{ProductID: 5, Revenue: 40},
		{ProductID: 6, Revenue: 0},
	}
	entries := ComputeABC(metrics)
	if len(entries) != len(metrics) {
		t.Fatalf("every product must be classified: %d != %d", len(entries), len(metrics))
	}
	for _, e := range entries {
		if e.Class != ClassA && e.Class != ClassB && e.Class != ClassC {
			t.Fatalf("product %d has no class", e.ProductID)
		}
	}
	// Ranking must be deterministic: revenue desc, then id.
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if cur.Revenue > prev.Revenue {
			t.Fatalf("entries out of order at %d", i)
		}
		if cur.Revenue == prev.Revenue && cur.ProductID < prev.ProductID {
			t.Fatalf("tie-break violated at %d", i)
		}
	}
}

func TestComputeXYZStableDemandIsX(t *testing.T) {
	series := []DemandSeries{
		{ProductID: 1, Name: "Steady", Monthly: []float64{10, 10, 10, 10, 10, 10}},
	}
	entries := ComputeXYZ(series)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].CV != 0 {
		t.Fatalf("constant demand must have zero CV, got %.4f", entries[0].CV)
	}
	if entries[0].Class != ClassX {
		t.Fatalf("expected X, got %s", entries[0].Class)
	}
}

func TestComputeXYZVolatileDemandIsZ(t *testing.T) {
	series := []DemandSeries{
		{ProductID: 2, Name: "Spiky", Monthly: []float64{0, 0, 60, 0, 0, 0}},
	}
	entries := ComputeXYZ(series)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Class != ClassZ {
		t.Fatalf("expected Z for spiky demand, got %s (cv %.4f)", entries[0].Class, entries[0].CV)
	}
}

func TestComputeXYZSkipsZeroDemand(t *testing.T) {
	series := []DemandSeries{
		{ProductID: 3, Name: "Dormant", Monthly: []float64{0, 0, 0}},
	}
	if entries := ComputeXYZ(series); len(entries) != 0 {
		t.Fatalf("zero-demand products must be excluded, got %d entries", len(entries))
	}
}

func TestMeanStdDev(t *testing.T) {
	mean, stddev := meanStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 {
		t.Fatalf("expected mean 5, got %.4f", mean)
	}
	if math.Abs(stddev-2) > 1e-9 {
		t.Fatalf("expected population stddev 2, got %.4f", stddev)
	}
}

func TestBuildMatrixNineCells(t *testing.T) {
	abc := []ABCEntry{
		{ProductID: 1, Class: ClassA},
		{ProductID: 2, Class: ClassB},
		{ProductID: 3, Class: ClassC},
		{ProductID: 4, Class: ClassC},
	}
	xyz := []XYZEntry{
		{ProductID: 1, Class: ClassX},
		{ProductID: 2, Class: ClassZ},
		{ProductID: 3, Class: ClassZ},
		// Product 4 has no XYZ class and must stay out of the matrix.
	}
	cells := BuildMatrix(abc, xyz)
	if len(cells) != 9 {
		t.Fatalf("expected 9 cells, got %d", len(cells))
	}

	counts := map[string]int{}
	for _, cell := range cells {
		counts[string(cell.ABC)+string(cell.XYZ)] = cell.Count
	}
	if counts["AX"] != 1 || counts["BZ"] != 1 || counts["CZ"] != 1 {
		t.Fatalf("unexpected cell counts: %v", counts)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total != 3 {
		t.Fatalf("expected 3 placed products, got %d", total)
	}
}

func TestCountClasses(t *testing.T) {
	abc := []ABCEntry{
		{ProductID: 1, Class: ClassA},
		{ProductID: 2, Class: ClassB},
		{ProductID: 3, Class: ClassC},
		{ProductID: 4, Class: ClassC},
	}
	xyz := []XYZEntry{
		{ProductID: 1, Class: ClassX},
		{ProductID: 2, Class: ClassZ},
		{ProductID: 3, Class: ClassZ},
	}

	abcCounts, xyzCounts := CountClasses(abc, xyz)
	if abcCounts[ClassA] != 1 || abcCounts[ClassB] != 1 || abcCounts[ClassC] != 2 {
		t.Fatalf("unexpected abc counts: %v", abcCounts)
	}
	if xyzCounts[ClassX] != 1 || xyzCounts[ClassY] != 0 || xyzCounts[ClassZ] != 2 {
		t.Fatalf("unexpected xyz counts: %v", xyzCounts)
	}
	if _, ok := xyzCounts[ClassY]; !ok {
		t.Fatal("expected empty classes present in counts")
	}
}
