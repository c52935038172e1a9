// Package scheduler runs the periodic evaluation loop for the portfolio
// backend. It handles:
// - Portfolio condition evaluation for every user with holdings
// - Saved screener execution with aggregate match alerts
// - Cleanup of expired alerts
//
// Cycles are single-flight: if a cycle is still running when the next
// tick fires, the tick is skipped. The loop is implemented in evaluator.go
package scheduler
