// Package providers defines the capability every sign-in method implements
// and the name-keyed registry the engine dispatches through.
//
// A provider is a [Provider]. It may additionally implement [Registrar],
// [CredentialResetter], or [CredentialValidator]; callers discover these with
// a type assertion. The concrete variants live in sub-packages:
// emailpassword, magiclink, oauth, and totp.
//
// Providers report the precise failure (autherr.ErrUserNotFound versus
// autherr.ErrInvalidCredentials). Hiding that distinction from end users is
// the caller's job.
package providers
