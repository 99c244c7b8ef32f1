package tokenstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/env"
)

// FromEnv builds the configured token store backend.
//
//	TOKEN_STORE_TYPE: "file" (default) or "postgres"
//	TOKEN_STORE_DIR:  data directory for the file backend (default "./tokens")
//	TOKEN_STORE_URI:  Postgres DSN for the postgres backend
func FromEnv(ctx context.Context) (Store, error) {
	storeType := strings.ToLower(env.GetEnvStringOrDefault("TOKEN_STORE_TYPE", "file"))

	switch storeType {
	case "file":
		dir := env.GetEnvStringOrDefault("TOKEN_STORE_DIR", "./tokens")
		return NewFileStore(dir)
	case "postgres", "postgresql", "pgx":
		dsn, err := env.GetEnvString("TOKEN_STORE_URI")
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported token store type %s", storeType)
	}
}
