package server

//go:generate swag init -g internal/server/server.go -o docs/swagger

// @title Sitecraft API
// @version 0.1
// @description Interactive documentation for the sitecraft build and publish API surface.
// @contact.name Sitecraft Maintainers
// @contact.url https://github.com/sitecraft/sitecraft
// @BasePath /
