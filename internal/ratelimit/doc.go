// Package ratelimit enforces per-user request ceilings and paces outbound
// vendor calls.
//
// Admission uses three epoch-aligned fixed windows (minute, hour, day) per
// (user, endpoint) pair, with ceilings chosen by subscription tier. Counters
// live in the backend so every instance sees the same usage. Rejected work
// can be parked on a priority queue for later replay, and the Throttler
// keeps a minimum interval between calls to each downstream service.
package ratelimit
