package session

import (
	"github.com/foxseedlab/localscribe/internal/config"
	"github.com/foxseedlab/localscribe/internal/discord"
	"github.com/foxseedlab/localscribe/internal/orchestrator"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		dc := do.MustInvoke[discord.Client](i)
		o := do.MustInvoke[*orchestrator.Orchestrator](i)
		return NewManager(dc, o, cfg.DiscordChannelID, cfg.MaxUploadBytes()), nil
	})
}
