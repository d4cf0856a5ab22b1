package middleware

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/troikatech/voice-bridge/pkg/errors"
)

var callSidPattern = regexp.MustCompile(`^CA[0-9a-fA-F]{32}$`)

// ValidateCallSidParam validates that a path parameter is a well-formed
// telephony call SID (CA followed by 32 hex characters)
func ValidateCallSidParam(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := c.Param(paramName)
		if sid == "" {
			errors.BadRequest(c, paramName+" parameter is required")
			c.Abort()
			return
		}

		if !callSidPattern.MatchString(sid) {
			errors.BadRequest(c, "invalid "+paramName+" parameter: must be a call SID")
			c.Abort()
			return
		}

		c.Set(paramName, sid)
		c.Next()
	}
}

var dialablePattern = regexp.MustCompile(`^\+?[0-9()\- ]{7,20}$`)

// ValidatePhoneQuery rejects query parameters that cannot be a phone number.
// Strict E.164 normalization happens in the handler; this only screens out
// garbage before it reaches the telephony provider.
func ValidatePhoneQuery(queryName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		phone := c.Query(queryName)
		if phone == "" {
			errors.BadRequest(c, queryName+" query parameter is required")
			c.Abort()
			return
		}

		if !dialablePattern.MatchString(phone) {
			errors.BadRequest(c, "invalid "+queryName+": must be a phone number (e.g., +15551234567)")
			c.Abort()
			return
		}

		c.Set(queryName, phone)
		c.Next()
	}
}

// SanitizeString removes potentially dangerous characters from strings
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")
	// Trim whitespace
	s = strings.TrimSpace(s)
	return s
}
