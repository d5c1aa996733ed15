package domain

// Identity is the stable external user identifier plus the mutable display
// name a client supplies at identify time. The REST layer owns verification;
// the message server takes the pair at face value once token possession is
// proven at the handshake.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}
