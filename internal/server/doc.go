// Package server serves the artifacts built by a magma engine over HTTP
//
// Each flow's latest artifact is served at its route. Status endpoints
// report every flow's watch state and recent failures
package server
