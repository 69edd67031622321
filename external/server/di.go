package server

import (
	"github.com/foxseedlab/localscribe/internal/config"
	"github.com/foxseedlab/localscribe/internal/metrics"
	"github.com/foxseedlab/localscribe/internal/orchestrator"
	"github.com/foxseedlab/localscribe/internal/repository"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*HTTPServer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		o := do.MustInvoke[*orchestrator.Orchestrator](i)
		repo := do.MustInvoke[repository.Repository](i)
		m := do.MustInvoke[*metrics.Metrics](i)
		return NewHTTPServer(cfg.HTTPAddr, o, repo, m, cfg.MaxUploadBytes()), nil
	})
}
