// Package authservice implements the HealthScan login protocol that the
// authflow controller talks to.
//
// Login verifies an Argon2id password hash from a [userstore.Provider].
// Users with TOTP enabled receive a short-lived challenge stored in Redis
// instead of a session; VerifyTOTP redeems it with a six-digit code, counting
// wrong codes and refusing replayed ones. Sessions are a signed access token
// plus a Redis record, so Logout revokes a token before it expires.
//
// Errors returned by the service are sentinels. [Detail] maps them to the
// text a client shows the user, and [AsAuthError] converts them into the
// shape an [authflow.Authenticator] returns. [Local] is such an
// Authenticator for in-process use.
package authservice
