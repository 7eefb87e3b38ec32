// Package auth decides who may use the message bus and the admin API.
//
// The bus side is the Bridge. The broker forwards every CONNECT and every
// PUBLISH/SUBSCRIBE to it and the Bridge answers allow, deny or ignore:
//   - client ids starting with "s-" are sensors, which may publish only to
//     sensor/{parameter} for the parameters their type measures
//   - client ids starting with "d-" are devices, which may subscribe only to
//     room/{their room} and device/{their id}
//   - the exact client id "api" is this backend, trusted once authenticated
//
// Stored bus secrets are hex(md5(password + username)) so that credentials
// provisioned on existing hardware keep working. A stored secret in Argon2id
// PHC form is verified with Argon2id over the same concatenation instead.
//
// The "api" credential is minted once per process by NewAPICredential and
// handed to both the Bridge and the backend's own bus connection. It is never
// persisted.
//
// The admin API uses HS256 bearer tokens carrying a role; see ParseToken and
// HasPermission.
package auth
