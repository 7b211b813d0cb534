package ratelimit

// AnonymousKey is used when neither a principal nor a client address is known.
const AnonymousKey = "anonymous"

// GlobalKey is the single bucket shared by all clients of a server-wide limiter.
const GlobalKey = "global"

// IdentityKey picks the limiter key for a request: the principal ID if
// authenticated, else the client address, else AnonymousKey. Prefixes
// keep user IDs and addresses from colliding.
func IdentityKey(principalID, clientIP string) string {
	switch {
	case principalID != "":
		return "user:" + principalID
	case clientIP != "":
		return "ip:" + clientIP
	default:
		return AnonymousKey
	}
}
