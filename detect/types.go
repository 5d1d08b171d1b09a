// Package detect locates the repeating item container of an unlabeled page.
//
// The pipeline is purely statistical: depth statistics over the element
// views, signal-anchored ancestor clustering, then additive scoring. A
// semantic oracle may be consulted on the top candidates; when it is
// consulted and unanimously rejects them, that veto stands. When it is
// absent or unreachable the statistical winner is used directly.
package detect

// Bounds on the analysis. DOM sizes are untrusted, so every scan that
// grows with the page is capped.
const (
	// MinRepetition is the minimum number of matches for a selector (and
	// members for a cluster) to count as a repeating structure.
	MinRepetition = 5

	// MaxSignals caps the signal element scan, earliest in document order.
	MaxSignals = 100

	// AncestorWindow is how many ancestor levels of each signal element
	// are inspected as container candidates.
	AncestorWindow = 4

	// MaxOracleCandidates bounds one oracle judgment batch.
	MaxOracleCandidates = 10

	// ScoreFloor is the minimum statistical score for a selection;
	// below it the detector reports "no suitable candidate".
	ScoreFloor = 40.0
)

// Detection methods.
const (
	MethodStatistical = "statistical"
	MethodWithOracle  = "statistical+oracle"
)

// Reasons attached to empty detections. These are outcomes, not errors.
const (
	ReasonNoSignal      = "no-signal"       // fewer than 5 signal elements
	ReasonNoCluster     = "no-cluster"      // no cluster reached the repetition threshold
	ReasonLowConfidence = "low-confidence"  // best score below the floor
	ReasonOracleVeto    = "oracle-veto"     // oracle rejected every candidate
)

// Signature is the clustering key: structurally identical containers get
// the same signature even when their class names differ.
type Signature struct {
	Tag        string
	ClassCount int
	HasPrice   bool
	HasLink    bool
	HasImage   bool
}

// Candidate is one hypothesized item container cluster.
type Candidate struct {
	Selector    string    `json:"selector"` // "tag.class" descriptor
	MatchCount  int       `json:"match_count"`
	ClusterSize int       `json:"cluster_size"`
	Depth       int       `json:"depth"`
	Signature   Signature `json:"-"`
	ClassCount  int       `json:"class_count"` // classes on the representative
	AvgTextLen  float64   `json:"avg_text_len"`
	SampleText  string    `json:"sample_text"`
	Score       float64   `json:"score"`
	Rejected    string    `json:"rejected,omitempty"` // hard-reject reason

	rep int // representative view index
}

// Detection is the detect() result. An empty Selector with a Reason is a
// legitimate "nothing to extract" outcome.
type Detection struct {
	Selector   string  `json:"selector,omitempty"`
	MatchCount int     `json:"match_count,omitempty"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Reason     string  `json:"reason,omitempty"`
}

// Found reports whether a container was selected.
func (d Detection) Found() bool { return d.Selector != "" }
