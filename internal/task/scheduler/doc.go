// Package scheduler triggers the bot's periodic jobs (the alert check and the
// weekly broadcast) with robfig/cron in the calendar timezone.
//
// Jobs run inline on the cron goroutine under a per-job timeout. A trigger that
// fires while the previous run of the same job is still in flight is skipped.
// Different jobs share one run slot, so their bodies never overlap; a job
// waiting for the slot gives up when its timeout expires.
package scheduler
