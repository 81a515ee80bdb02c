// Package rate implements the sliding-window attempt throttle.
//
// # Window semantics
//
// A key's window holds the timestamps of attempts made within the trailing
// Window. Check prunes timestamps t with now-t >= Window, denies when the
// survivors already number MaxAttempts (without recording), and otherwise
// records now. ResetAt is the oldest surviving timestamp plus Window.
//
// Two backends share these semantics:
//   - [Memory]: per-key entries with their own mutex; [Memory.Sweep] reclaims
//     empty keys without holding the map lock for the whole pass.
//   - [Redis]: one ZSET per key (prefix "thr:") updated by a single Lua script.
//
// # What this package must NOT do
//
//   - Know what a key means (email, IP, token); callers choose keys.
//   - Be imported outside the goSignIn module.
package rate
