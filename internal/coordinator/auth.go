package coordinator

import (
	"context"
	"fmt"

	"github.com/riftlab/rift/internal/model"
	"github.com/riftlab/rift/internal/rifterr"
	"github.com/riftlab/rift/internal/store"
)

// Credential is the opaque token the Client/Daemon presents. OAuth/JWT
// issuance and validation are explicitly out of scope (spec §1); the
// Coordinator only needs something that resolves a Credential to a user id.
type Credential struct {
	Token string `json:"token"`
}

// CredentialChecker is the external collaborator that validates a
// Credential and resolves it to a user id. Production deployments wire a
// real OAuth/JWT verifier here; StaticChecker below is a development/test
// stand-in.
type CredentialChecker interface {
	Verify(ctx context.Context, cred Credential) (userID string, err error)
}

// StaticChecker treats the bearer token as a username looked up directly in
// the Store — enough to exercise the protocol end-to-end without a real
// identity provider, matching spec §1's "treated as an opaque Credential
// checker".
type StaticChecker struct {
	Store store.Store
}

func (c *StaticChecker) Verify(ctx context.Context, cred Credential) (string, error) {
	if cred.Token == "" {
		return "", fmt.Errorf("%w: empty credential", rifterr.ErrAuth)
	}
	u, err := c.Store.GetUserByUsername(ctx, cred.Token)
	if err != nil {
		return "", fmt.Errorf("%w: unknown credential", rifterr.ErrAuth)
	}
	return u.ID, nil
}

// SessionHandle is returned by POST /auth/verify.
type SessionHandle struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Role     model.Role `json:"role"`
}
