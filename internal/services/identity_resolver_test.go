package services

import (
	"context"
	"errors"
	"testing"

	"github.com/authgate/backend/internal/models"
	"github.com/google/uuid"
)

func githubAssertion(email, accountID string) OAuthAssertion {
	return OAuthAssertion{
		Provider:          models.ProviderTypeGitHub,
		ProviderAccountID: accountID,
		Email:             email,
		Name:              "GitHub User",
		Type:              "oauth",
	}
}

func TestIdentityResolver_Resolve(t *testing.T) {
	db := setupIdentityTestDB(t)
	store := NewIdentityStore(db)
	resolver := NewIdentityResolver(store)

	t.Run("credentials assertions pass straight through", func(t *testing.T) {
		id := uuid.New()
		res := resolver.Resolve(context.TODO(), CredentialsAssertion{UserID: id})
		if res.Outcome != OutcomeProceedAsNewUser {
			t.Fatalf("expected proceed outcome, got %s", res.Outcome)
		}
		if res.UserID != id {
			t.Errorf("expected user id %s, got %s", id, res.UserID)
		}
	})

	t.Run("missing email is rejected", func(t *testing.T) {
		res := resolver.Resolve(context.TODO(), githubAssertion("", "gh-1"))
		if res.Outcome != OutcomeRejected {
			t.Fatalf("expected rejected outcome, got %s", res.Outcome)
		}
		if !errors.Is(res.Reason, ErrMissingEmail) {
			t.Errorf("expected ErrMissingEmail, got %v", res.Reason)
		}
	})

	t.Run("unknown email proceeds as new user", func(t *testing.T) {
		res := resolver.Resolve(context.TODO(), githubAssertion("new@example.com", "gh-2"))
		if res.Outcome != OutcomeProceedAsNewUser {
			t.Fatalf("expected proceed outcome, got %s", res.Outcome)
		}
	})

	t.Run("matching email links to the existing user", func(t *testing.T) {
		user := createStoreUser(t, store, "linkme@example.com", "secret123")

		res := resolver.Resolve(context.TODO(), githubAssertion("linkme@example.com", "gh-123"))
		if res.Outcome != OutcomeLinkedToExisting {
			t.Fatalf("expected linked outcome, got %s", res.Outcome)
		}
		if res.UserID != user.ID {
			t.Errorf("expected user %s, got %s", user.ID, res.UserID)
		}

		link, err := store.FindLinkedAccount(context.TODO(), user.ID, models.ProviderTypeGitHub, "gh-123")
		if err != nil || link == nil {
			t.Fatalf("expected persisted link row, got link=%v err=%v", link, err)
		}
		if link.ExpiresAt == nil {
			t.Error("expected link expiry to be recorded")
		}
	})

	t.Run("second sign-in with the same identity is idempotent", func(t *testing.T) {
		res := resolver.Resolve(context.TODO(), githubAssertion("linkme@example.com", "gh-123"))
		if res.Outcome != OutcomeAlreadyLinked {
			t.Fatalf("expected already-linked outcome, got %s", res.Outcome)
		}

		accounts, err := store.ListLinkedAccounts(context.TODO(), res.UserID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(accounts) != 1 {
			t.Errorf("expected exactly one link row, got %d", len(accounts))
		}
	})

	t.Run("email match is case-insensitive", func(t *testing.T) {
		user := createStoreUser(t, store, "cased@example.com", "secret123")

		res := resolver.Resolve(context.TODO(), githubAssertion("CASED@Example.COM", "gh-456"))
		if res.Outcome != OutcomeLinkedToExisting {
			t.Fatalf("expected linked outcome, got %s", res.Outcome)
		}
		if res.UserID != user.ID {
			t.Errorf("expected user %s, got %s", user.ID, res.UserID)
		}
	})

	t.Run("raw-cased legacy rows are still found", func(t *testing.T) {
		active := true
		legacy := &models.User{
			Email:    "Legacy@Example.com",
			Name:     "Legacy Row",
			Role:     models.UserRoleUser,
			IsActive: &active,
		}
		if err := db.Create(legacy).Error; err != nil {
			t.Fatalf("failed creating legacy user: %v", err)
		}

		res := resolver.Resolve(context.TODO(), githubAssertion("Legacy@Example.com", "gh-789"))
		if res.Outcome != OutcomeLinkedToExisting {
			t.Fatalf("expected linked outcome, got %s", res.Outcome)
		}
		if res.UserID != legacy.ID {
			t.Errorf("expected user %s, got %s", legacy.ID, res.UserID)
		}
	})
}

func TestIdentityResolver_ImageBackfill(t *testing.T) {
	db := setupIdentityTestDB(t)
	store := NewIdentityStore(db)
	resolver := NewIdentityResolver(store)

	t.Run("provider image fills an empty profile", func(t *testing.T) {
		user := createStoreUser(t, store, "noimage@example.com", "secret123")

		image := "https://avatars.example.com/u/1"
		assertion := githubAssertion("noimage@example.com", "gh-img-1")
		assertion.Image = &image

		res := resolver.Resolve(context.TODO(), assertion)
		if res.Outcome != OutcomeLinkedToExisting {
			t.Fatalf("expected linked outcome, got %s", res.Outcome)
		}

		refreshed, err := store.FindUserByID(context.TODO(), user.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if refreshed.Image == nil || *refreshed.Image != image {
			t.Errorf("expected image backfill, got %v", refreshed.Image)
		}
	})

	t.Run("existing image is never overwritten", func(t *testing.T) {
		existing := "https://cdn.example.com/original.png"
		user := createStoreUser(t, store, "hasimage@example.com", "secret123")
		if err := db.Model(&models.User{}).Where("id = ?", user.ID).Update("image", existing).Error; err != nil {
			t.Fatalf("failed setting image: %v", err)
		}

		image := "https://avatars.example.com/u/2"
		assertion := githubAssertion("hasimage@example.com", "gh-img-2")
		assertion.Image = &image

		resolver.Resolve(context.TODO(), assertion)

		refreshed, err := store.FindUserByID(context.TODO(), user.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if refreshed.Image == nil || *refreshed.Image != existing {
			t.Errorf("expected original image to survive, got %v", refreshed.Image)
		}
	})
}

func TestIdentityResolver_ProvisionUser(t *testing.T) {
	db := setupIdentityTestDB(t)
	store := NewIdentityStore(db)
	resolver := NewIdentityResolver(store)

	t.Run("creates user with normalized email and first link", func(t *testing.T) {
		user, err := resolver.ProvisionUser(context.TODO(), githubAssertion("New.Person@Example.com", "gh-new-1"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Email != "new.person@example.com" {
			t.Errorf("expected lower-cased email, got %q", user.Email)
		}
		if user.Role != models.UserRoleUser {
			t.Errorf("expected default role user, got %s", user.Role)
		}
		if user.PasswordHash != nil {
			t.Error("provisioned oauth users must not carry a password hash")
		}

		link, err := store.FindLinkedAccount(context.TODO(), user.ID, models.ProviderTypeGitHub, "gh-new-1")
		if err != nil || link == nil {
			t.Fatalf("expected link row, got link=%v err=%v", link, err)
		}
	})

	t.Run("losing an email race surfaces ErrDuplicateEmail", func(t *testing.T) {
		createStoreUser(t, store, "raced@example.com", "secret123")

		_, err := resolver.ProvisionUser(context.TODO(), githubAssertion("raced@example.com", "gh-new-2"))
		if !errors.Is(err, ErrDuplicateEmail) {
			t.Fatalf("expected ErrDuplicateEmail, got %v", err)
		}
	})
}

func TestIdentityResolver_LinkToUser(t *testing.T) {
	db := setupIdentityTestDB(t)
	store := NewIdentityStore(db)
	resolver := NewIdentityResolver(store)

	user := createStoreUser(t, store, "linker@example.com", "secret123")

	t.Run("links regardless of email match", func(t *testing.T) {
		err := resolver.LinkToUser(context.TODO(), user.ID, githubAssertion("different@example.com", "gh-link-1"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("relinking the same identity conflicts", func(t *testing.T) {
		err := resolver.LinkToUser(context.TODO(), user.ID, githubAssertion("different@example.com", "gh-link-1"))
		if !errors.Is(err, ErrDuplicateLink) {
			t.Fatalf("expected ErrDuplicateLink, got %v", err)
		}
	})
}
