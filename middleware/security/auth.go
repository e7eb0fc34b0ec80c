package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ankit-kumarpr/lastchat/tools/errs"
	jwtlib "github.com/ankit-kumarpr/lastchat/tools/security"
)

// CtxUserIDKey is where the middleware stores the verified user id.
const CtxUserIDKey = "userID"

// Middleware verifies a Bearer token and binds the subject user id into the
// gin context. Routes behind it can trust CtxUserIDKey.
func Middleware(opts jwtlib.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errs.TokenInvalidError,
				"msg":  "missing bearer token",
			})
			return
		}

		userID, err := jwtlib.Verify(opts, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errs.CodeOf(err),
				"msg":  "invalid token",
			})
			return
		}

		c.Set(CtxUserIDKey, userID)
		c.Next()
	}
}

// UserID reads the verified identity set by Middleware.
func UserID(c *gin.Context) string {
	v, ok := c.Get(CtxUserIDKey)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
