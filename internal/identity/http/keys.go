package http

import (
	"log/slog"
	"net/http"

	"github.com/taskhive/identity/pkg/httpx"
	"github.com/taskhive/identity/pkg/jwtx"
)

// KeyHandler exposes the verification side of the signing key pair so
// downstream services can verify access tokens locally.
type KeyHandler struct {
	Codec  *jwtx.Codec
	Logger *slog.Logger
}

type publicKeyResponse struct {
	PublicKey string `json:"publicKey"`
	Algorithm string `json:"algorithm"`
	KeyType   string `json:"keyType"`
}

// HandlePublicKey returns the public key as PEM.
//
//	GET /public-key
func (h *KeyHandler) HandlePublicKey(w http.ResponseWriter, r *http.Request) {
	pem, err := h.Codec.Keys.PublicPEM()
	if err != nil {
		h.Logger.Error("failed to encode public key", "error", err)
		errServer.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, publicKeyResponse{
		PublicKey: pem,
		Algorithm: "RS256",
		KeyType:   "RSA",
	})
}

// HandleJWKS returns the same key in JWKS form.
//
//	GET /.well-known/jwks.json
func (h *KeyHandler) HandleJWKS(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, jwtx.JWKS{Keys: []jwtx.JWK{h.Codec.PublicJWK()}})
}
