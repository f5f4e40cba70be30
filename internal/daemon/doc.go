// Package daemon hosts the long-running notesmith service: a single-instance
// lock, startup reconciliation of interrupted tasks, and the HTTP API used to
// create, inspect, and manage tasks.
package daemon
