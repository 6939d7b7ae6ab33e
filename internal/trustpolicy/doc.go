// Package trustpolicy reads and rewrites the assume-role trust policy of an
// account's cross-account access role. Document edits are pure transforms over
// parsed statements; the RoleEditor performs the IAM reads and writes at the
// edges using credentials assumed in the target account.
package trustpolicy
