// Package lifecycle tracks each bucket's processing state with a small
// looplab/fsm state machine generalized from application.FSM's binary
// started/stopped model to the three states a bucket's stop sequence
// actually passes through.
package lifecycle
