package convert

import (
	"github.com/foxseedlab/localscribe/internal/audio"
	"github.com/foxseedlab/localscribe/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Pipeline, error) {
		cfg := do.MustInvoke[*config.Config](i)
		decoder := do.MustInvoke[audio.Decoder](i)
		return NewPipeline(cfg.ScratchDir, decoder), nil
	})
}
