package classify

// ABCClass buckets products by revenue contribution.
type ABCClass string

// XYZClass buckets products by demand stability.
type XYZClass string

const (
	ClassA ABCClass = "A"
	ClassB ABCClass = "B"
	ClassC ABCClass = "C"

	ClassX XYZClass = "X"
	ClassY XYZClass = "Y"
	ClassZ XYZClass = "Z"
)

// ProductMetric is a product's revenue within the analysis window.
type ProductMetric struct {
	ProductID int64
	Name      string
	Revenue   float64
}

// DemandSeries is a product's dense monthly quantity series: one value per
// calendar month of the window, zero when nothing sold.
type DemandSeries struct {
	ProductID int64
	Name      string
	Monthly   []float64
}

// ABCEntry is one product's position in the Pareto ranking.
type ABCEntry struct {
	ProductID       int64    `json:"product_id"`
	Name            string   `json:"name"`
	Revenue         float64  `json:"revenue"`
	Share           float64  `json:"share"`
	CumulativeShare float64  `json:"cumulative_share"`
	Class           ABCClass `json:"class"`
}

// XYZEntry is one product's demand-stability verdict.
type XYZEntry struct {
	ProductID int64    `json:"product_id"`
	Name      string   `json:"name"`
	Mean      float64  `json:"mean"`
	StdDev    float64  `json:"std_dev"`
	CV        float64  `json:"cv"`
	Class     XYZClass `json:"class"`
}

// MatrixCell is one of the nine combined classification cells.
type MatrixCell struct {
	ABC        ABCClass `json:"abc"`
	XYZ        XYZClass `json:"xyz"`
	Count      int      `json:"count"`
	ProductIDs []int64  `json:"product_ids"`
}

// Report is the full classification for a window.
type Report struct {
	DateFrom  string           `json:"date_from"`
	DateTo    string           `json:"date_to"`
	ABC       []ABCEntry       `json:"abc"`
	XYZ       []XYZEntry       `json:"xyz"`
	Matrix    []MatrixCell     `json:"matrix"`
	ABCCounts map[ABCClass]int `json:"abc_counts"`
	XYZCounts map[XYZClass]int `json:"xyz_counts"`
}
