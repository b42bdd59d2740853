package main

import (
	"context"

	"github.com/streampulse/accounts/internal/config"
	pg "github.com/streampulse/accounts/internal/repository/postgres"
)

type dbHandle = *pg.DB

func initDB(ctx context.Context, cfg *config.Config) (dbHandle, error) {
	return pg.NewDB(ctx, cfg.DB)
}
