package orchestrator

import (
	"github.com/foxseedlab/localscribe/internal/config"
	"github.com/foxseedlab/localscribe/internal/convert"
	"github.com/foxseedlab/localscribe/internal/metrics"
	"github.com/foxseedlab/localscribe/internal/repository"
	"github.com/foxseedlab/localscribe/internal/transcriber"
	"github.com/foxseedlab/localscribe/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Orchestrator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		mode, err := transcriber.ParseMode(cfg.TranscriptionMode)
		if err != nil {
			return nil, err
		}
		return New(Options{
			Converter:  do.MustInvoke[*convert.Pipeline](i),
			Engine:     do.MustInvoke[transcriber.Engine](i),
			Mode:       mode,
			Retention:  cfg.ScratchRetention,
			Language:   cfg.TranscribeLanguage,
			Repository: do.MustInvoke[repository.Repository](i),
			Webhook:    do.MustInvoke[webhook.Sender](i),
			Metrics:    do.MustInvoke[*metrics.Metrics](i),
		}), nil
	})
}
