// Package jobs holds the registry of job types and the submission service.
//
// A job type is registered once at process start through a typed Definition;
// the registry erases the Go types into a Descriptor that decodes and
// validates JSON input, invokes the handler and encodes its output. Service
// turns validated input into WAITING queue rows. Running jobs is the worker
// package's responsibility.
package jobs
