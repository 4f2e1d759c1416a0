// Package stores keeps the short-lived records of the authentication
// service in Redis: pending TOTP challenges, sessions and used-code markers.
//
// # Design
//
// Challenges and sessions are versioned binary records with a TTL. Failed
// attempts on a challenge are counted with WATCH/MULTI and retried on
// contention; reaching the cap deletes the challenge. Used TOTP codes are
// SETNX markers that expire with the code's validity window.
//
// # What this package must NOT do
//
//   - Validate TOTP codes or passwords. The service does that.
//   - Store plaintext codes. Replay markers hold a hash.
package stores
