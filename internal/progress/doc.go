// Package progress provides human-readable progress output for a fetch
// session.
//
// Output is written to stderr by default:
//
//	[dars] Fetching: https://soi.example.com/search
//	[dars] Workers: 4
//	[dars] Files: 12/? | 1.2 GiB | Speed: 48 MiB/s | 4 in-progress | 0 failed
//
// Counters are atomics, so workers report without taking a lock.
package progress
