// Package auth is the boundary to the external mutual-authentication
// handshake (signature exchange over hybrid AES/RSA encryption). The core
// treats the handshake as opaque: byte blobs in, byte blobs out, with
// correctness delegated to whichever implementation is injected.
package auth

import (
	"context"
	"errors"
)

// ErrUnavailable means no handshake implementation is wired in.
var ErrUnavailable = errors.New("auth: signature handshake unavailable")

// VerifyRequest carries the client's side of the handshake.
type VerifyRequest struct {
	EncryptedSessionKey []byte `json:"encrypted_session_key"`
	EncryptedSignature  []byte `json:"encrypted_signature"`
	Message             string `json:"message"`
	UserID              int    `json:"user_id"`
	SignatureDigestHex  string `json:"signature_digest_hex"`
}

// VerifyResponse carries the server's acknowledgement signature.
type VerifyResponse struct {
	ServerSignatureEncrypted []byte `json:"server_signature_encrypted"`
	ServerSignatureDigest    []byte `json:"server_signature_digest"`
}

// Verifier validates a client's signature and produces the server's
// counter-signature.
type Verifier interface {
	VerifyClientSignature(ctx context.Context, req VerifyRequest) (VerifyResponse, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, req VerifyRequest) (VerifyResponse, error)

func (f VerifierFunc) VerifyClientSignature(ctx context.Context, req VerifyRequest) (VerifyResponse, error) {
	return f(ctx, req)
}

// Disabled rejects every handshake. It is the default until a crypto
// implementation is injected.
type Disabled struct{}

func (Disabled) VerifyClientSignature(context.Context, VerifyRequest) (VerifyResponse, error) {
	return VerifyResponse{}, ErrUnavailable
}
