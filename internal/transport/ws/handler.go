package ws

import (
	"context"
	"log"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"nhooyr.io/websocket"

	"github.com/courier-chat/courier/internal/service"
)

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (WebSocket can't send headers).
// The token only proves possession of a credential issued by the REST layer;
// the identity bound to the connection comes from its identify frame.
func ServeWS(router *service.Router, registry *service.Registry, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		if err := validateToken(tokenStr, jwtSecret); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true, // Allow any origin (dev mode)
		})
		if err != nil {
			log.Printf("ws: accept error: %v", err)
			return
		}

		client := NewClient(router, conn)
		registry.Join(client)

		// The request context dies when this handler returns; the pumps
		// outlive it.
		go client.WritePump(context.Background())
		go client.ReadPump(context.Background())
	}
}

func validateToken(tokenStr, secret string) error {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenUnverifiable
	}
	return nil
}
