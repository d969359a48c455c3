// Package schedule provides schedules used to plan the next run of a
// recurring job.
//
// This package includes:
//   - Schedule interface for defining job schedules
//   - Every() for fixed-interval schedules
//   - Daily() for daily schedules at a specific time
//   - Weekly() for weekly schedules on a specific day and time
//   - Cron() and ParseCron() for cron expression-based schedules
//   - Interval() to turn a schedule into a "next run in" duration
//
// A worker configured with a schedule adds the successor of each finished
// job Interval(s, now) after the job finished.
package schedule
