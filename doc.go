// Package trustor is a trust-decision engine that auto-approves queued
// code-execution jobs without human review when either of two
// independently maintained criteria matches: the job's sender is on the
// allowlist, or the job's code signature was previously marked trusted.
//
// The engine polls the external job queue on a fixed cadence, evaluates
// every pending job against both trust stores and approves matches; all
// other jobs are left for manual review. A management facade mutates the
// same stores concurrently under per-store mutual exclusion, enforcing the
// privacy rule that a non-administrative caller may only learn its own
// allowlist membership.
package trustor
