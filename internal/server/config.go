package server

import (
	"github.com/sitecraft/sitecraft/internal/app"
	"github.com/sitecraft/sitecraft/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// JWTSecret is the HS256 key used to verify bearer tokens on
	// authenticated routes. Token minting happens elsewhere on the platform.
	JWTSecret string

	AppConfig *app.Config
	Logger    logging.Logger
}
