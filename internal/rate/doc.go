// Package rate throttles failed logins per credential id with Redis
// fixed-window counters.
//
// # Window semantics
//
// INCR plus EXPIRE on the first hit of a window. Keys are
// <prefix>:fail:<credential id>. A successful login deletes the counter.
package rate
