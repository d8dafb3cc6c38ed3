package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/tasktracker/internal/model"
)

// --- モック定義 ---

type mockVerifier struct {
	verifyFunc func(ctx context.Context, assertion string) (*model.VerifiedIdentity, error)
}

func (m *mockVerifier) Verify(ctx context.Context, assertion string) (*model.VerifiedIdentity, error) {
	return m.verifyFunc(ctx, assertion)
}

type mockUserRepo struct {
	upsertFunc   func(ctx context.Context, googleSub, email, name string) (*model.User, error)
	findByIDFunc func(ctx context.Context, id int64) (*model.User, error)
}

func (m *mockUserRepo) UpsertByGoogleSub(ctx context.Context, googleSub, email, name string) (*model.User, error) {
	return m.upsertFunc(ctx, googleSub, email, name)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return m.findByIDFunc(ctx, id)
}

type mockIssuer struct {
	issueFunc func(userID int64, email string) (string, error)
}

func (m *mockIssuer) Issue(userID int64, email string) (string, error) {
	return m.issueFunc(userID, email)
}

// --- テスト ---

func TestService_Login_Success(t *testing.T) {
	verifier := &mockVerifier{
		verifyFunc: func(ctx context.Context, assertion string) (*model.VerifiedIdentity, error) {
			if assertion != "valid-id-token" {
				t.Errorf("assertion = %q, want %q", assertion, "valid-id-token")
			}
			return &model.VerifiedIdentity{
				ExternalID:  "google-sub-1",
				Email:       "user@example.com",
				DisplayName: "Test User",
			}, nil
		},
	}

	var upsertedSub, upsertedEmail, upsertedName string
	userRepo := &mockUserRepo{
		upsertFunc: func(ctx context.Context, googleSub, email, name string) (*model.User, error) {
			upsertedSub, upsertedEmail, upsertedName = googleSub, email, name
			return &model.User{
				ID:        10,
				GoogleSub: googleSub,
				Email:     email,
				Name:      name,
				CreatedAt: time.Now(),
			}, nil
		},
	}

	issuer := &mockIssuer{
		issueFunc: func(userID int64, email string) (string, error) {
			if userID != 10 {
				t.Errorf("issued userID = %d, want 10", userID)
			}
			return "session-token", nil
		},
	}

	svc := NewService(verifier, userRepo, issuer)

	result, err := svc.Login(context.Background(), "valid-id-token")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if result.User.ID != 10 {
		t.Errorf("User.ID = %d, want 10", result.User.ID)
	}
	if result.Token != "session-token" {
		t.Errorf("Token = %q, want %q", result.Token, "session-token")
	}
	if upsertedSub != "google-sub-1" || upsertedEmail != "user@example.com" || upsertedName != "Test User" {
		t.Errorf("upsert called with (%q, %q, %q)", upsertedSub, upsertedEmail, upsertedName)
	}
}

// TestService_Login_VerificationErrorPropagatesUnwrapped は検証エラーが
// ラップされずにそのまま返ることを検証する（ハンドラーのerrors.Is判定のため）。
func TestService_Login_VerificationErrorPropagatesUnwrapped(t *testing.T) {
	for _, sentinel := range []error{ErrInvalidAssertion, ErrAudienceNotConfigured} {
		verifier := &mockVerifier{
			verifyFunc: func(ctx context.Context, assertion string) (*model.VerifiedIdentity, error) {
				return nil, sentinel
			},
		}

		svc := NewService(verifier, &mockUserRepo{}, &mockIssuer{})

		_, err := svc.Login(context.Background(), "bad-token")
		if !errors.Is(err, sentinel) {
			t.Errorf("Login error = %v, want %v", err, sentinel)
		}
	}
}

func TestService_Login_UpsertError(t *testing.T) {
	verifier := &mockVerifier{
		verifyFunc: func(ctx context.Context, assertion string) (*model.VerifiedIdentity, error) {
			return &model.VerifiedIdentity{ExternalID: "sub", Email: "a@example.com"}, nil
		},
	}
	userRepo := &mockUserRepo{
		upsertFunc: func(ctx context.Context, googleSub, email, name string) (*model.User, error) {
			return nil, errors.New("db down")
		},
	}

	svc := NewService(verifier, userRepo, &mockIssuer{})

	_, err := svc.Login(context.Background(), "token")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, ErrInvalidAssertion) {
		t.Error("repository error must not be classified as an invalid assertion")
	}
}

func TestService_Login_IssueError(t *testing.T) {
	verifier := &mockVerifier{
		verifyFunc: func(ctx context.Context, assertion string) (*model.VerifiedIdentity, error) {
			return &model.VerifiedIdentity{ExternalID: "sub", Email: "a@example.com"}, nil
		},
	}
	userRepo := &mockUserRepo{
		upsertFunc: func(ctx context.Context, googleSub, email, name string) (*model.User, error) {
			return &model.User{ID: 1, Email: email}, nil
		},
	}
	issuer := &mockIssuer{
		issueFunc: func(userID int64, email string) (string, error) {
			return "", errors.New("signing failed")
		},
	}

	svc := NewService(verifier, userRepo, issuer)

	if _, err := svc.Login(context.Background(), "token"); err == nil {
		t.Fatal("expected error, got nil")
	}
}
