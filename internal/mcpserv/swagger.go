//go:build swagger

package mcpserv

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "borealis/docs"
)

// MountSwagger serves the swagger UI at /swagger/ from the generated docs
// package. Enabled with -tags=swagger.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.WrapHandler)
}
