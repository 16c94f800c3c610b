// Package scheduler fires registered tasks at a fixed rate on top of
// robfig/cron.
//
// Each task carries an atomic enabled flag. A tick reads the flag once: when
// set, the task's contract function is handed to the Runner; when clear, the
// tick does nothing. A tick that arrives while the previous tick of the same
// task is still running is skipped, never queued.
package scheduler
