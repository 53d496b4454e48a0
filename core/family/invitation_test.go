package family

import (
	"testing"
	"time"
)

func TestMakeVerifyToken(t *testing.T) {
	gen := tokenGenerator{secretKey: "secret", timeout: 7 * 24 * time.Hour, now: time.Now}

	p := ParentProfile{
		ID:     "0b6e0a52-1f0c-4a43-9f7c-8a5f3c0f6f10",
		Name:   "Amani",
		Email:  "amani@test.cd",
		Status: ParentActive,
	}
	validToken, err := gen.makeToken(p)
	if err != nil {
		t.Fatalf("makeToken() failed: %v", err)
	}

	// generate an expired token
	weekLate := gen.timeout + (24 * time.Hour)
	late := gen
	late.now = func() time.Time { return time.Now().Add(-weekLate) }
	expiredToken, err := late.makeToken(p)
	if err != nil {
		t.Fatalf("makeToken() failed: %v", err)
	}

	joined := p
	joined.UserID = "5d1f2f5e-9a57-4a0e-8f53-7a0f5d0b3e21"
	moved := p
	moved.Email = "other@test.cd"

	tests := []struct {
		name    string
		p       ParentProfile
		token   string
		wantErr error
	}{
		{name: "no token", p: p, wantErr: errInvalidToken},
		{name: "invalid parts len", p: p, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", p: p, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", p: p, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", p: p, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", p: p, token: expiredToken, wantErr: errTokenExpired},
		{name: "already joined", p: joined, token: validToken, wantErr: errInvalidToken},
		{name: "email changed", p: moved, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", p: p, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := gen.verifyToken(tt.p, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeUID(t *testing.T) {
	p := ParentProfile{ID: "0b6e0a52-1f0c-4a43-9f7c-8a5f3c0f6f10"}
	id, err := decodeUID(EncodeUID(p))
	if err != nil {
		t.Fatalf("decodeUID() failed: %v", err)
	}
	if id != p.ID {
		t.Errorf("decodeUID() = %v, want %v", id, p.ID)
	}
}
