package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every cluster placement and cut edge.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// PartitionTrace collects the decisions of one partitioning run.
type PartitionTrace struct {
	Level     TraceLevel
	Strategy  string
	Requested int
	Effective int
	Explicit  bool
	Clusters  []ClusterRecord
	Cuts      []CutRecord
}

// NewPartitionTrace creates a PartitionTrace ready for recording.
func NewPartitionTrace(level TraceLevel) *PartitionTrace {
	return &PartitionTrace{
		Level:    level,
		Clusters: make([]ClusterRecord, 0),
		Cuts:     make([]CutRecord, 0),
	}
}

// Enabled reports whether records should be collected. Safe on nil.
func (pt *PartitionTrace) Enabled() bool {
	return pt != nil && pt.Level == TraceLevelDecisions
}

// RecordCluster appends a cluster placement record.
func (pt *PartitionTrace) RecordCluster(record ClusterRecord) {
	pt.Clusters = append(pt.Clusters, record)
}

// RecordCut appends a cut edge record.
func (pt *PartitionTrace) RecordCut(record CutRecord) {
	pt.Cuts = append(pt.Cuts, record)
}
