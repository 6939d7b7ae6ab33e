// Package utils provides shared configuration loading and logging helpers used
// across orgmover commands.
package utils
