package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the generation and callback endpoints under /api.
// Generation endpoints require authenticate; callbacks are authenticated by
// their token instead.
func RegisterRoutes(
	r chi.Router,
	generations *GenerationHandler,
	callbacks *CallbackHandler,
	authenticate func(http.Handler) http.Handler,
) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/callbacks/{provider}", callbacks.HandleCallback)
		r.Post("/callbacks/{provider}/{correlationID}", callbacks.HandleCallback)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Post("/generations/videos", generations.SubmitVideo)
			r.Post("/generations/videos/{correlationID}/extend", generations.ExtendVideo)
			r.Post("/generations/images", generations.SubmitImage)
			r.Get("/generations/{correlationID}", generations.GetGeneration)
			r.Post("/generations/{correlationID}/refresh", generations.RefreshGeneration)
		})
	})
}
