package classify

import (
	"math"
	"sort"
)

// ABC revenue boundaries: a product belongs to A while the revenue
// accumulated before it is under 80% of the total, to B while under 95%.
// Comparing accumulated revenue (not a rounded percentage) keeps the product
// that crosses a boundary inside the class it completes.
const (
	abcBoundaryA = 0.80
	abcBoundaryB = 0.95
)

// XYZ coefficient-of-variation thresholds.
const (
	xyzBoundaryX = 0.10
	xyzBoundaryY = 0.25
)

// ComputeABC ranks products by revenue and assigns Pareto classes. Ordering
// is revenue descending with ascending id as tie-break, so repeated runs over
// the same data classify identically.
func ComputeABC(metrics []ProductMetric) []ABCEntry {
	if len(metrics) == 0 {
		return []ABCEntry{}
	}
	ranked := make([]ProductMetric, len(metrics))
	copy(ranked, metrics)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Revenue != ranked[j].Revenue {
			return ranked[i].Revenue > ranked[j].Revenue
		}
		return ranked[i].ProductID < ranked[j].ProductID
	})

	var total float64
	for _, m := range ranked {
		total += m.Revenue
	}

	entries := make([]ABCEntry, 0, len(ranked))
	var cumulative float64
	for _, m := range ranked {
		class := ClassC
		switch {
		case cumulative < abcBoundaryA*total:
			class = ClassA
		case cumulative < abcBoundaryB*total:
			class = ClassB
		}
		cumulative += m.Revenue

		entry := ABCEntry{
			ProductID: m.ProductID,
			Name:      m.Name,
			Revenue:   m.Revenue,
			Class:     class,
		}
		if total > 0 {
			entry.Share = m.Revenue / total
			entry.CumulativeShare = cumulative / total
		}
		entries = append(entries, entry)
	}
	return entries
}

// ComputeXYZ classifies demand stability from dense monthly quantity series.
// Products with zero mean demand in the window are skipped: a coefficient of
// variation is undefined for them.
func ComputeXYZ(series []DemandSeries) []XYZEntry {
	entries := make([]XYZEntry, 0, len(series))
	for _, s := range series {
		mean, stddev := meanStdDev(s.Monthly)
		if mean == 0 {
			continue
		}
		cv := stddev / mean
		class := ClassZ
		switch {
		case cv < xyzBoundaryX:
			class = ClassX
		case cv < xyzBoundaryY:
			class = ClassY
		}
		entries = append(entries, XYZEntry{
			ProductID: s.ProductID,
			Name:      s.Name,
			Mean:      mean,
			StdDev:    stddev,
			CV:        cv,
			Class:     class,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CV != entries[j].CV {
			return entries[i].CV < entries[j].CV
		}
		return entries[i].ProductID < entries[j].ProductID
	})
	return entries
}

// meanStdDev computes the mean and population standard deviation.
func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// BuildMatrix places every product classified on both axes into one of the
// nine ABC/XYZ cells. Products missing an XYZ class (zero demand) appear only
// in the ABC listing.
func BuildMatrix(abc []ABCEntry, xyz []XYZEntry) []MatrixCell {
	xyzByProduct := make(map[int64]XYZClass, len(xyz))
	for _, e := range xyz {
		xyzByProduct[e.ProductID] = e.Class
	}

	cells := make(map[string]*MatrixCell, 9)
	for _, a := range []ABCClass{ClassA, ClassB, ClassC} {
		for _, x := range []XYZClass{ClassX, ClassY, ClassZ} {
			key := string(a) + string(x)
			cells[key] = &MatrixCell{ABC: a, XYZ: x, ProductIDs: []int64{}}
		}
	}
	for _, e := range abc {
		xc, ok := xyzByProduct[e.ProductID]
		if !ok {
			continue
		}
		cell := cells[string(e.Class)+string(xc)]
		cell.ProductIDs = append(cell.ProductIDs, e.ProductID)
	}

	ordered := make([]MatrixCell, 0, 9)
	for _, a := range []ABCClass{ClassA, ClassB, ClassC} {
		for _, x := range []XYZClass{ClassX, ClassY, ClassZ} {
			cell := cells[string(a)+string(x)]
			sort.Slice(cell.ProductIDs, func(i, j int) bool { return cell.ProductIDs[i] < cell.ProductIDs[j] })
			cell.Count = len(cell.ProductIDs)
			ordered = append(ordered, *cell)
		}
	}
	return ordered
}

// CountClasses tallies the per-class distribution on each axis. Every class
// appears in its map even when empty.
func CountClasses(abc []ABCEntry, xyz []XYZEntry) (map[ABCClass]int, map[XYZClass]int) {
	abcCounts := map[ABCClass]int{ClassA: 0, ClassB: 0, ClassC: 0}
	for _, e := range abc {
		abcCounts[e.Class]++
	}
	xyzCounts := map[XYZClass]int{ClassX: 0, ClassY: 0, ClassZ: 0}
	for _, e := range xyz {
		xyzCounts[e.Class]++
	}
	return abcCounts, xyzCounts
}
