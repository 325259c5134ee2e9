// Package pipeline orchestrates the per-frame analysis flow: calibration,
// tracking and event replay.
//
// This package is the composition root: it imports the layer packages
// (calib, track, events) and the persistence sink, but none of those
// packages import pipeline/.
package pipeline
