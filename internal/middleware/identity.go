package middleware

// identity.go holds helpers shared across middleware files and handlers
// for reading the authenticated user from the Echo context.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// UserID returns the authenticated user ID stored by JWTAuth.  The
// second result is false for anonymous requests.
func UserID(c echo.Context) (uint64, bool) {
    id, ok := c.Get(CtxUserID).(uint64)
    return id, ok && id != 0
}

// userKey renders the user for cache and rate-limit keys; anonymous
// requests share the "anon" bucket.
func userKey(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    return "anon"
}
