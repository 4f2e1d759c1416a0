// Package authflow drives the sign-in flow of the HealthScan client:
// username and password first, then a TOTP code when the account has a
// second factor enabled.
//
// A [Controller] owns one attempt. It calls an [Authenticator] at most once
// per submission and hands the view an immutable [Snapshot] after every
// transition: the state tag, the busy flag, the failure message and the
// held challenge or session. Build one with [New]:
//
//	ctrl, err := authflow.New().
//		WithAuthenticator(client).
//		WithLogger(logger).
//		Build()
//
// # State machine
//
//	AwaitingCredentials   --submit-->         Submitting
//	Submitting            --ok, no 2FA-->     Authenticated
//	Submitting            --ok, 2FA-->        AwaitingSecondFactor
//	Submitting            --fail-->           AwaitingCredentials + Failure
//	AwaitingSecondFactor  --submit code-->    VerifyingSecondFactor
//	VerifyingSecondFactor --ok-->             Authenticated
//	VerifyingSecondFactor --fail-->           AwaitingSecondFactor + Failure
//	any but Authenticated --cancel-->         AwaitingCredentials
//	Authenticated         --logout-->         AwaitingCredentials
//
// A [Challenge] is held exactly in AwaitingSecondFactor and
// VerifyingSecondFactor.
//
// # Architecture boundaries
//
// authflow knows nothing about transport. The HTTP client lives in
// httpclient, the reference service in authservice, link visibility in
// navigation and the first-launch gate in onboarding. Those packages import
// authflow; authflow imports none of them.
//
// # What this package must NOT do
//
//   - Retry an authenticator call.
//   - Return an authentication failure as an error.
//   - Log or audit passwords, codes or access tokens.
package authflow
