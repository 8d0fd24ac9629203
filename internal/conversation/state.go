package conversation

// State is a step in the credential-collection dialogue. The set is closed:
// every user is in exactly one of these states, and idle means no dialogue
// is in progress.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingHost     State = "awaiting_host"
	StateAwaitingUsername State = "awaiting_username"
	StateAwaitingPassword State = "awaiting_password"
	StateAwaitingKey      State = "awaiting_key"
)

func (s State) IsValid() bool {
	switch s {
	case StateIdle, StateAwaitingHost, StateAwaitingUsername,
		StateAwaitingPassword, StateAwaitingKey:
		return true
	}
	return false
}

// AuthMethod selects how the dialogue will authenticate once the host and
// username have been collected.
type AuthMethod string

const (
	AuthPassword AuthMethod = "password"
	AuthKey      AuthMethod = "key"
)

func (m AuthMethod) IsValid() bool {
	return m == AuthPassword || m == AuthKey
}
