package webhook

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/hendrywilliam/skua/src/structs"
)

// PingRequestMiddleware answers the server's liveness ping without
// involving the interaction handler.
func (server *Server) PingRequestMiddleware(c fiber.Ctx) error {
	i := new(structs.Interaction)
	if err := c.Bind().JSON(i); err != nil {
		return err
	}
	if i.Type == structs.InteractionTypePing {
		return c.JSON(structs.InteractionResponse{
			Type: structs.InteractionResponseTypePong,
		})
	}
	return c.Next()
}

// VerifyKeyMiddleware rejects requests whose ed25519 signature does
// not match the application public key.
func (server *Server) VerifyKeyMiddleware(c fiber.Ctx) error {
	pubKeyHex, err := hex.DecodeString(server.publicKey)
	if err != nil {
		server.log.Error().Err(err).Msg("malformed application public key")
		return c.Status(http.StatusInternalServerError).SendString("internal server error")
	}
	body := c.BodyRaw()
	headers := c.GetReqHeaders()
	timestamp, ok := headers["X-Signature-Timestamp"]
	if !ok || len(timestamp) == 0 {
		return c.Status(http.StatusUnauthorized).SendString("invalid timestamp signature")
	}
	signature, ok := headers["X-Signature-Ed25519"]
	if !ok || len(signature) == 0 {
		return c.Status(http.StatusUnauthorized).SendString("invalid ed25519 signature")
	}
	signatureHex, err := hex.DecodeString(signature[0])
	if err != nil {
		return c.Status(http.StatusUnauthorized).SendString("invalid ed25519 signature")
	}
	message := bytes.Join([][]byte{[]byte(timestamp[0]), body}, []byte(""))
	if !ed25519.Verify(pubKeyHex, message, signatureHex) {
		return c.Status(http.StatusUnauthorized).SendString("invalid request signature")
	}
	return c.Next()
}
