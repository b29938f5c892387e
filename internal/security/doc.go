// Package security derives a loggable summary of the engine's security
// posture from its configuration.
package security
