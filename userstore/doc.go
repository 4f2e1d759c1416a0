// Package userstore holds the user records the authentication service
// checks passwords and TOTP secrets against.
//
// [Memory] serves tests and the embedded dev server. [Postgres] is backed by
// database/sql with the pgx driver; its schema ships as embedded
// golang-migrate migrations applied by [Migrate].
package userstore
