package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/api/idtoken"

	"github.com/nhle/taskminder/internal/model"
	"github.com/nhle/taskminder/internal/store"
)

// ErrGoogleDisabled is returned by GoogleLogin when no verifier is configured.
var ErrGoogleDisabled = errors.New("google sign-in is not configured")

// GoogleIdentity is the verified content of a Google ID token.
type GoogleIdentity struct {
	// Subject is the stable Google account id.
	Subject string
	Email   string
	Name    string
}

// TokenVerifier checks a Google ID token and returns the identity it carries.
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*GoogleIdentity, error)
}

// GoogleVerifier validates ID tokens against Google's published keys.
type GoogleVerifier struct {
	audience string
	validate func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

// NewGoogleVerifier accepts tokens issued for the OAuth client clientID.
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{audience: clientID, validate: idtoken.Validate}
}

// Verify validates raw and extracts the account identity.
func (v *GoogleVerifier) Verify(ctx context.Context, raw string) (*GoogleIdentity, error) {
	p, err := v.validate(ctx, raw, v.audience)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return identityFromPayload(p)
}

func identityFromPayload(p *idtoken.Payload) (*GoogleIdentity, error) {
	email, _ := p.Claims["email"].(string)
	if p.Subject == "" || email == "" {
		return nil, fmt.Errorf("%w: missing subject or email", ErrInvalidToken)
	}
	if verified, ok := p.Claims["email_verified"].(bool); ok && !verified {
		return nil, fmt.Errorf("%w: email %s not verified", ErrInvalidToken, email)
	}
	name, _ := p.Claims["name"].(string)
	return &GoogleIdentity{Subject: p.Subject, Email: email, Name: name}, nil
}

// UseGoogle enables GoogleLogin with v.
func (s *Service) UseGoogle(v TokenVerifier) {
	s.google = v
}

// GoogleLogin verifies a Google ID token and signs the owner in. A new
// account is created when neither the email nor the Google id is known;
// an existing password account with the same email gets the Google id
// linked to it.
func (s *Service) GoogleLogin(ctx context.Context, idToken string) (*model.User, string, error) {
	if s.google == nil {
		return nil, "", ErrGoogleDisabled
	}
	if strings.TrimSpace(idToken) == "" {
		return nil, "", &InputError{Field: "token"}
	}

	id, err := s.google.Verify(ctx, idToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	email := normalizeEmail(id.Email)

	u, err := s.findGoogleUser(ctx, email, id.Subject)
	switch {
	case errors.Is(err, store.ErrNotFound):
		u, err = s.createGoogleUser(ctx, email, id)
		if err != nil {
			return nil, "", err
		}
	case err != nil:
		return nil, "", err
	case u.GoogleID == "":
		if err := s.users.LinkGoogleID(ctx, u.Email, id.Subject); err != nil {
			return nil, "", fmt.Errorf("linking google account to %s: %w", u.Email, err)
		}
		u.GoogleID = id.Subject
	}

	token, err := s.IssueToken(*u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// findGoogleUser looks the account up by email, then by Google id.
func (s *Service) findGoogleUser(ctx context.Context, email, googleID string) (*model.User, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading user %s: %w", email, err)
	}

	u, err = s.users.GetUserByGoogleID(ctx, googleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("loading google user %s: %w", googleID, err)
	}
	return u, nil
}

func (s *Service) createGoogleUser(
	ctx context.Context,
	email string,
	id *GoogleIdentity,
) (*model.User, error) {
	name := strings.TrimSpace(id.Name)
	if name == "" {
		name = email
	}
	u := model.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		GoogleID:  id.Subject,
		CreatedAt: s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		// Lost a race with a concurrent first sign-in for the same account.
		if errors.Is(err, store.ErrConflict) {
			return s.findGoogleUser(ctx, email, id.Subject)
		}
		return nil, fmt.Errorf("creating google user %s: %w", email, err)
	}
	return &u, nil
}
