// Package sim defines the build artifact of a simulated network and the
// vocabulary shared by the partitioning pipeline.
//
// # Reading Guide
//
// Start with these files:
//   - network.go: structural entities (ensembles, nodes, connections, probes) loaded from YAML
//   - signal.go, operator.go, model.go: the signal arena and the closed operator set
//   - errors.go: error kinds every stage of the pipeline reports
//
// # Architecture
//
// The pipeline runs in sub-packages, each consuming the output of the previous one:
//   - sim/build/: network → Model (signals and operators)
//   - sim/partition/: network → cluster graph → component assignment
//   - sim/schedule/: Model + assignment → one ordered Program per component
//   - sim/chunk/: executes one Program, exchanging boundary signals with peers
//   - sim/distributed/: runs every chunk in lock-step
//   - sim/store/: saves compiled Programs to a network file
//   - sim/trace/: partition decision records
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - partition.Strategy: assign clusters to components
//   - schedule.Target: receive a Program's creation calls
//   - chunk.Transport: carry step-boundary payloads between components
//   - store.Store: persist compiled runs
package sim
