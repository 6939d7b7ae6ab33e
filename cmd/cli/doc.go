// Package cli wires the orgmover Cobra command hierarchy, configuration
// loading, and logging.
package cli
