// Package awsauth derives per-account AWS configurations by assuming the
// account's cross-account access role from an organization management session.
package awsauth
