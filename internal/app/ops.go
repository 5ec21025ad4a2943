package app

import (
	"context"

	"adminpanel/internal/config"
	"adminpanel/internal/monitor"
	"adminpanel/internal/storage"
	logx "adminpanel/pkg/logx"
	"adminpanel/pkg/sysstat"
)

// Migrate applies the schema and seeds the administrator, then closes the store.
func Migrate(ctx context.Context, cfg *config.Config, log logx.Logger) (storage.Stats, error) {
	sc, err := mapStorage(cfg)
	if err != nil {
		return storage.Stats{}, err
	}
	st, err := storage.Open(ctx, sc, log)
	if err != nil {
		return storage.Stats{}, err
	}
	defer st.Close()
	if err := st.Initialize(ctx, mapAdmin(cfg)); err != nil {
		return storage.Stats{}, err
	}
	return st.Stats(ctx)
}

// Check samples resources once and returns the alert message that the
// watcher would raise ("" when healthy).
func Check(ctx context.Context, cfg *config.Config) (sysstat.Usage, string, error) {
	s, err := NewSampler(cfg.Monitor.Sampler)
	if err != nil {
		return sysstat.Usage{}, "", err
	}
	mon, err := monitor.New(s)
	if err != nil {
		return sysstat.Usage{}, "", err
	}
	u, err := mon.CheckResources(ctx)
	if err != nil {
		return sysstat.Usage{}, "", err
	}
	return u, monitor.Evaluate(u), nil
}
