// Package migration drives accounts through the ordered organization-to-
// organization migration protocol. The Service executes one account's steps in
// order and records the terminal outcome; the Orchestrator folds the batch's
// task list through the Service, writing failure records before evaluating the
// max-failures circuit breaker. There is no automatic compensation: removal
// from the source organization and trust finalization are not safely
// reversible, so recovery is a manual procedure driven by the failure log.
package migration
