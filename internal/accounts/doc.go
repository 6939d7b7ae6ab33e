// Package accounts supplies the ordered list of AWS account identifiers a
// batch run operates on. The CSV reader is a thin collaborator: it validates
// identifier shape and uniqueness so downstream components can assume both.
package accounts
