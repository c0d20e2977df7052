package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/overseer-bot/shop/app/controllers"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App, router ...Router) {
	setup(app, router...)

	// Must stay last so it only sees requests no route matched.
	app.Use(controllers.HandleNotFound)
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
