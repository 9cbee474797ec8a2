package trace

import (
	"testing"
)

func TestPartitionTrace_RecordCluster_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for decisions
	pt := NewPartitionTrace(TraceLevelDecisions)

	// WHEN a cluster record is recorded
	pt.RecordCluster(ClusterRecord{
		Cluster:   0,
		Entities:  []string{"A"},
		Folded:    []string{"stim"},
		Cost:      51,
		Component: 1,
		Reason:    "work-balanced",
	})

	// THEN the trace contains one cluster record with correct data
	if len(pt.Clusters) != 1 {
		t.Fatalf("expected 1 cluster record, got %d", len(pt.Clusters))
	}
	if pt.Clusters[0].Component != 1 {
		t.Errorf("expected component 1, got %d", pt.Clusters[0].Component)
	}
	if pt.Clusters[0].Folded[0] != "stim" {
		t.Errorf("expected folded stim, got %v", pt.Clusters[0].Folded)
	}
}

func TestPartitionTrace_RecordCut_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for decisions
	pt := NewPartitionTrace(TraceLevelDecisions)

	// WHEN a cut record is recorded
	pt.RecordCut(CutRecord{From: 0, To: 1, FromComponent: 0, ToComponent: 1, Weight: 2, Connections: []string{"A->B"}})

	// THEN the trace contains one cut record with correct data
	if len(pt.Cuts) != 1 {
		t.Fatalf("expected 1 cut, got %d", len(pt.Cuts))
	}
	if pt.Cuts[0].Connections[0] != "A->B" {
		t.Errorf("expected connection A->B, got %v", pt.Cuts[0].Connections)
	}
}

func TestPartitionTrace_MultipleRecords_PreservesOrder(t *testing.T) {
	// GIVEN a trace
	pt := NewPartitionTrace(TraceLevelDecisions)

	// WHEN multiple records are added
	for i := 0; i < 3; i++ {
		pt.RecordCluster(ClusterRecord{Cluster: i, Component: i % 2})
	}

	// THEN order is preserved
	for i, c := range pt.Clusters {
		if c.Cluster != i {
			t.Errorf("record %d: expected cluster %d, got %d", i, i, c.Cluster)
		}
	}
}

func TestPartitionTrace_Enabled(t *testing.T) {
	var nilTrace *PartitionTrace
	if nilTrace.Enabled() {
		t.Error("nil trace must not be enabled")
	}
	if NewPartitionTrace(TraceLevelNone).Enabled() {
		t.Error("none level must not be enabled")
	}
	if !NewPartitionTrace(TraceLevelDecisions).Enabled() {
		t.Error("decisions level must be enabled")
	}
}

func TestIsValidTraceLevel(t *testing.T) {
	tests := []struct {
		level string
		want  bool
	}{
		{"", true},
		{"none", true},
		{"decisions", true},
		{"verbose", false},
	}
	for _, tt := range tests {
		if got := IsValidTraceLevel(tt.level); got != tt.want {
			t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
