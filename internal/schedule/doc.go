// Package schedule turns compliance alert and report requests into concrete
// fire rules.
//
// An alert is a deadline minus a lead time, optionally recurring on a
// calendar anchor (daily, weekly, monthly, yearly) taken from that candidate
// instant. A report is a five-field cron expression. Both resolve to a
// FireRule, which the job registry consumes without caring which kind it is.
//
// All calendar arithmetic happens in UTC. Cron expressions are evaluated in
// the location passed to ParseCron (UTC unless configured otherwise).
package schedule
