package credutil

import (
	"fmt"
	"strings"
)

// EncodeCookie renders a Set-Cookie value for a session cookie:
// "name=value; Path=/; HttpOnly; SameSite=Lax[; Secure]; Max-Age=N".
// maxAgeSeconds of zero expires the cookie immediately.
func EncodeCookie(name, value string, maxAgeSeconds int, secure bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%s; Path=/; HttpOnly; SameSite=Lax", name, value)
	if secure {
		b.WriteString("; Secure")
	}
	fmt.Fprintf(&b, "; Max-Age=%d", maxAgeSeconds)
	return b.String()
}

// ClearCookie renders a Set-Cookie value that removes the named cookie.
func ClearCookie(name string, secure bool) string {
	return EncodeCookie(name, "", 0, secure)
}
