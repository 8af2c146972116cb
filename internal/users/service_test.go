package users

import (
	"context"
	"errors"
	"testing"
)

func TestUpsertFromAuthValidates(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	tests := []struct {
		name string
		user User
		want error
	}{
		{name: "missing id", user: User{Email: "a@x.com"}, want: ErrMissingIdentity},
		{name: "missing email", user: User{ID: "u1"}, want: ErrMissingIdentity},
		{name: "ok", user: User{ID: "u1", Email: "a@x.com", Name: "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.UpsertFromAuth(context.Background(), tt.user)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	user, err := svc.GetByID(context.Background(), "u1")
	if err != nil || user.Name != "A" || user.LastLoginAt.IsZero() {
		t.Fatalf("unexpected stored user %+v (%v)", user, err)
	}
}

func TestNilServiceNotConfigured(t *testing.T) {
	var svc *Service
	if err := svc.UpsertFromAuth(context.Background(), User{ID: "u", Email: "e"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
