package presence

import "fmt"

// OnlineLoginsSet indexes the distinct logins with at least one On entry
// (spec.md §3's "companion set"), grounded on proxy.rs's "usuarios_online".
const OnlineLoginsSet = "online_logins"

// LiveKey builds the hash key for one live-session entry: live:{login}:{tag}.
// For ssh/openvpn, tag is the login; for xray it is the UUID (spec.md §4.7.6).
func LiveKey(login, tag string) string {
	return fmt.Sprintf("live:%s:%s", login, tag)
}

// LiveKeyPattern matches every live-session entry for a login, or every
// entry when login is "*".
func LiveKeyPattern(login string) string {
	return fmt.Sprintf("live:%s:*", login)
}

// SplitLiveKey recovers (login, tag) from a "live:{login}:{tag}" key.
func SplitLiveKey(key string) (login, tag string) {
	rest := key[len("live:"):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return rest[:i], rest[i+1:]
		}
	}
	return rest, ""
}
