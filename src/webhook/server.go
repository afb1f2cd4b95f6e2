package webhook

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/hendrywilliam/skua/src/structs"
)

// InteractionHandler turns an inbound interaction into a response.
// Returning nil yields a 400 for an interaction the app does not know.
type InteractionHandler func(ctx context.Context, i *structs.Interaction) *structs.InteractionResponse

// Server receives interaction callbacks over HTTP. Requests are
// signature-verified and pings are answered before the handler runs.
type Server struct {
	router    *fiber.App
	publicKey string
	handler   InteractionHandler
	log       zerolog.Logger
}

type Arguments struct {
	// PublicKey is the hex-encoded ed25519 application key used to
	// verify request signatures.
	PublicKey string
	Handler   InteractionHandler
	Logger    zerolog.Logger
}

func NewServer(args Arguments) *Server {
	return &Server{
		publicKey: args.PublicKey,
		handler:   args.Handler,
		log:       args.Logger,
	}
}

func (server *Server) setupRouter() {
	router := fiber.New()
	router.Use("/", server.VerifyKeyMiddleware)
	router.Use("/", server.PingRequestMiddleware)
	router.Post("/interactions", func(c fiber.Ctx) error {
		req := new(structs.Interaction)
		if err := c.Bind().JSON(req); err != nil {
			server.log.Error().Err(err).Msg("failed to bind interaction")
			return c.Status(http.StatusInternalServerError).SendString("internal server error")
		}
		if server.handler != nil {
			if res := server.handler(c.Context(), req); res != nil {
				return c.JSON(res)
			}
		}
		server.log.Warn().Str("name", req.Data.Name).Msg("unknown interaction")
		return c.Status(http.StatusBadRequest).JSON("error: 'unknown request'")
	})
	server.router = router
}

func (server *Server) StartServer(ctx context.Context, addr string) error {
	server.log.Info().Str("addr", addr).Msg("interaction server starting")
	server.setupRouter()
	return server.router.Listen(addr, fiber.ListenConfig{
		GracefulContext: ctx,
		OnShutdownSuccess: func() {
			server.log.Info().Msg("interaction server stopped")
		},
	})
}
