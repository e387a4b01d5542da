package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/wayfarian/groupjourney/pkg/events"
)

// wsHandler upgrades an authenticated request to a WebSocket connection and
// hands it to the ConnectionManager, which owns the connection's lifecycle
// from here (spec §4.3: authenticate once per connection, subsequent frames
// inherit the verified identity).
//
// Browsers cannot set an Authorization header on the handshake request, so
// the bearer token is accepted either there or as a "token" query parameter,
// same fallback the teacher's websocket upgrade path uses.
func (s *Server) wsHandler(c *echo.Context) error {
	token := bearerToken(c.Request())
	if token == "" {
		token = c.QueryParam("token")
	}
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, errorBody{Error: "NotAuthorized", Message: "missing bearer token"})
	}

	auth, err := s.identity.Verify(c.Request().Context(), token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, errorBody{Error: "NotAuthorized", Message: "invalid or expired token"})
	}

	conn, err := websocket.Accept(c.Response().Writer, c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: s.cfg.Environment != "production",
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Error: "InvalidInput", Message: "websocket upgrade failed"})
	}

	// HandleConnection blocks for the life of the connection; it owns conn
	// close from here, including on every return path.
	s.connManager.HandleConnection(c.Request().Context(), conn, events.AuthIdentity{
		UserID:      auth.UserID,
		DisplayName: auth.DisplayName,
		PhotoRef:    auth.PhotoRef,
	}, s.lifecycle)
	return nil
}
