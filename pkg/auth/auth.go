package auth

import (
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/env"
)

// SecretKey is the shared secret verified by the generate-token endpoint
// and baked into every issued session token.
var SecretKey string

func init() {
	SecretKey, _ = env.GetEnvString("SECRET_KEY")
}
