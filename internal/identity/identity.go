package identity

// Kind discriminates the two supported actors. There are no authenticated
// non-owner roles in this system.
type Kind int

const (
	KindAnonymous Kind = iota
	KindOwner
)

// Identity is the acting identity for one operation, resolved once and
// threaded explicitly through store and vote calls rather than re-derived
// at each call site.
type Identity struct {
	Kind      Kind
	SessionID string // set when Kind == KindAnonymous
	UserID    string // set when Kind == KindOwner
}

func Anonymous(sessionID string) Identity {
	return Identity{Kind: KindAnonymous, SessionID: sessionID}
}

func Owner(userID string) Identity {
	return Identity{Kind: KindOwner, UserID: userID}
}

func (i Identity) IsOwner() bool {
	return i.Kind == KindOwner
}

// Key is a stable cache key for this identity.
func (i Identity) Key() string {
	if i.Kind == KindOwner {
		return "owner:" + i.UserID
	}
	return "anon:" + i.SessionID
}
