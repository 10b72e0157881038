// Package icloud is a minimal client for the iCloud web photo library.
//
// [New] builds a [Client] and restores a saved session from the session directory. [Client.Login]
// signs in; when [Client.RequiresTwoStep] is true the caller picks one of
// [Client.TrustedDevices], calls [Client.SendVerificationCode] and then
// [Client.ValidateVerificationCode]. Cookies are saved after every successful sign-in so later
// runs skip verification until the session expires.
//
// [Client.Photos] opens the CloudKit photo database. Collections are enumerated with
// direction DESCENDING starting at the last rank, so items arrive newest first.
//
// Every API call waits on a token bucket limiter before it is sent.
package icloud
