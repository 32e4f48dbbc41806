// Package pipeline threads a mutable Cargo through an ordered, frozen list of
// named steps.
//
// A Pipeline accepts steps until Freeze; afterwards it is read-only and safe to
// share between concurrent executions. Each execution owns its Cargo. The
// cargo's plan holds step names, not step values, and Run resolves them
// against the pipeline. Before a step runs its RequiredData keys must be
// present in the cargo; a missing key fails with *MissingCargoDataError and
// leaves the cargo untouched.
package pipeline
