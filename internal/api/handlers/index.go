package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const dialFormHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Voice Bridge</title>
  <style>
    body { font-family: sans-serif; max-width: 480px; margin: 4rem auto; }
    input, button { font-size: 1rem; padding: 0.5rem; }
  </style>
</head>
<body>
  <h1>Voice Bridge</h1>
  <p>Enter a phone number in E.164 format to place an outbound agent call.</p>
  <form action="/outbound-call" method="get">
    <input type="tel" name="number" placeholder="+15551234567" required>
    <button type="submit">Call</button>
  </form>
</body>
</html>
`

// Index serves the dial form.
func (h *Handler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(dialFormHTML))
}
