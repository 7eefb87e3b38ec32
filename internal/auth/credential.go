package auth

import "github.com/google/uuid"

// APICredential is the bus login of this backend. One is minted per process;
// the password goes to the backend's own MQTT connection and the digest to
// the Bridge.
type APICredential struct {
	Username string
	Password string
	secret   string
}

// NewAPICredential generates a fresh random credential for client id "api".
func NewAPICredential() APICredential {
	password := uuid.NewString()
	return APICredential{
		Username: APIClientID,
		Password: password,
		secret:   DigestSecret(password, APIClientID),
	}
}

// Secret returns the stored form the Bridge compares against.
func (c APICredential) Secret() string {
	return c.secret
}
