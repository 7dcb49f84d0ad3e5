package session

// AuthenticationError means the login endpoint rejected the credentials
// (wrong password, unknown user). The message is the server-supplied reason
// and is safe to show to the user. Never retried automatically.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

// RegistrationError means the register endpoint rejected the submission
// (duplicate email, policy-rejected password). The message distinguishes
// the reason for the user.
type RegistrationError struct {
	Message string
}

func (e *RegistrationError) Error() string {
	return e.Message
}
