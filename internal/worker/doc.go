// Package worker claims queued jobs and runs them through their registered
// handlers.
//
// The Manager runs one lane per device (cpu, gpu, api). Each lane has as many
// workers as configured for the device; every worker claims the next WAITING
// job of its lane, runs it with heartbeats, timeouts and the job's retry
// policy, and records the outcome on the job, in the status tracker and on the
// event bus. A separate loop reclaims RUNNING jobs whose heartbeats stopped.
//
// Lanes are independent, so a long GPU job never blocks CPU preprocessing or
// API-bound classification. The manager is the only component that moves a
// job out of RUNNING.
package worker
