package events

// KindLoginRequested identifies login requests.
const KindLoginRequested Kind = "auth.login_requested"

// LoginRequested marks that stored credentials were cleared and the auth
// collaborator was asked for a new login.
type LoginRequested struct{ Base }

// NewLoginRequested creates a login requested event.
func NewLoginRequested() LoginRequested {
	return LoginRequested{Base: NewBase(KindLoginRequested)}
}
