// Package orgmembership wraps the AWS Organizations membership operations a
// migration needs: detaching an account from the source organization, inviting
// it into the target organization, accepting the invitation handshake with the
// account's own credentials, and moving the account into a destination OU.
// Every API failure is classified so callers can distinguish permission,
// state-conflict, not-found, and transient conditions.
package orgmembership
