// Package processing is a minimal, concrete stand-in for the external
// task-processing service the triggering core depends on but does not own.
// It exists so Triggerer and PollLoop are exercised end-to-end: a
// bounded per-bucket slot pool models backpressure, and a registered
// executor models "run the task", without pulling in the real task engine.
package processing
