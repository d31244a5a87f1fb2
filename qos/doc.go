// Package qos models Quality-of-Service delivery contracts and merges
// the profiles of mismatched source publishers into a single profile a
// bridged destination publisher can safely advertise.
//
// The merge policy is weakest-wins for compatibility-governed fields
// (reliability, durability), tightest-wins for timing bounds (deadline,
// lifespan), and deepest-wins for history, so that any subscriber able
// to match the weakest source can match the merged result.
package qos
