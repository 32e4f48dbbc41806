// Package tracker records per-entity, per-job-type status rows.
//
// Each (entity_id, job_type) key holds at most one live row. Writes replace
// rows with delete+insert inside one transaction, so re-running a job for the
// same entity never conflicts and readers always see either the previous or
// the new status. A missing row means the job type was never attempted for the
// entity; batch jobs use Pending to reprocess only entities that are missing or
// not finished.
package tracker
