// Package server assembles the HTTP router and its configuration.
package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benchfarm/benchfarm/internal/api"
	"github.com/benchfarm/benchfarm/internal/bench"
	"github.com/benchfarm/benchfarm/internal/build"
	"github.com/benchfarm/benchfarm/internal/project"
	"github.com/benchfarm/benchfarm/internal/store"
)

// Deps are the backends the router serves from.
type Deps struct {
	Store   store.Store
	Builds  *build.Manager
	Results *bench.ResultStore
	Config  *project.Config
}

// NewRouter builds the chi router with the full middleware stack and all
// farm routes.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(api.FarmHeaders)
	r.Use(api.RequestLogger)
	r.Use(api.LimitBody)
	r.Use(api.ValidateContentType)

	jobH := api.NewJobHandler(d.Store)
	buildH := api.NewBuildHandler(d.Store, d.Builds, d.Config)
	resultH := api.NewResultHandler(d.Results)
	systemH := api.NewSystemHandler(d.Store)

	r.Get("/farm/v1/health", systemH.Health)
	r.Get("/farm/v1/manifest", systemH.Manifest)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/farm/v1/jobs", jobH.Create)
	r.Get("/farm/v1/jobs", jobH.List)
	r.Get("/farm/v1/jobs/{name}", jobH.Get)
	r.Delete("/farm/v1/jobs/{name}", jobH.Cancel)

	r.Get("/farm/v1/builds", buildH.List)
	r.Get("/farm/v1/projects", buildH.Projects)
	r.Post("/farm/v1/projects/{project}/builds", buildH.Ensure)

	r.Get("/farm/v1/results", resultH.Suites)
	r.Get("/farm/v1/results/{suite}", resultH.Summary)

	return r
}
