package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/session-server-go/internal/errors"
	"github.com/openclaw/session-server-go/internal/model"
	"github.com/openclaw/session-server-go/internal/repository"
	"github.com/openclaw/session-server-go/internal/util"
)

const maxAPIKeyLength = 4096

var apiKeyNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// APIKeyView is what leaves the service: never the key itself.
type APIKeyView struct {
	Name      string    `json:"name"`
	Masked    string    `json:"masked"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// APIKeyService keeps third-party API keys encrypted at rest under the
// service-wide passphrase.
type APIKeyService struct {
	repo      repository.APIKeyRepository
	encryptor *util.Encryptor
}

func NewAPIKeyService(repo repository.APIKeyRepository, encryptor *util.Encryptor) *APIKeyService {
	return &APIKeyService{repo: repo, encryptor: encryptor}
}

func (s *APIKeyService) Store(ctx context.Context, userID, name, secret string) (*APIKeyView, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !apiKeyNamePattern.MatchString(name) {
		return nil, apperrors.InvalidInput("name", "must be 1-64 lowercase letters, digits, '-' or '_'")
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, apperrors.MissingRequired("key")
	}
	if len(secret) > maxAPIKeyLength {
		return nil, apperrors.InvalidInput("key", "is too long")
	}

	ciphertext, err := s.encryptor.Encrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("encrypt api key: %w", err)
	}

	key, err := s.repo.Upsert(ctx, model.UpsertAPIKeyParams{
		UserID:        userID,
		Name:          name,
		KeyCiphertext: ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("store api key: %w", err)
	}

	log.Info().Str("userId", userID).Str("name", name).Msg("api key stored")

	return &APIKeyView{
		Name:      key.Name,
		Masked:    util.MaskSecret(secret),
		UpdatedAt: key.UpdatedAt,
	}, nil
}

// List masks each stored key. A row that no longer decrypts is listed with
// the placeholder mask rather than failing the whole listing.
func (s *APIKeyService) List(ctx context.Context, userID string) ([]APIKeyView, error) {
	keys, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	views := make([]APIKeyView, 0, len(keys))
	for _, key := range keys {
		masked := util.MaskSecret("")
		if plaintext, err := s.encryptor.Decrypt(key.KeyCiphertext); err != nil {
			log.Warn().Err(err).Str("userId", userID).Str("name", key.Name).Msg("stored api key does not decrypt")
		} else {
			masked = util.MaskSecret(plaintext)
		}
		views = append(views, APIKeyView{
			Name:      key.Name,
			Masked:    masked,
			UpdatedAt: key.UpdatedAt,
		})
	}
	return views, nil
}

// Reveal returns the plaintext key for server-side use by the owning user.
func (s *APIKeyService) Reveal(ctx context.Context, userID, name string) (string, error) {
	key, err := s.repo.FindByUserIDAndName(ctx, userID, strings.ToLower(name))
	if err != nil {
		return "", fmt.Errorf("find api key: %w", err)
	}
	if key == nil {
		return "", apperrors.NotFound("API key")
	}
	return s.encryptor.Decrypt(key.KeyCiphertext)
}

func (s *APIKeyService) Delete(ctx context.Context, userID, name string) error {
	count, err := s.repo.Delete(ctx, userID, strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if count == 0 {
		return apperrors.NotFound("API key")
	}

	log.Info().Str("userId", userID).Str("name", name).Msg("api key deleted")
	return nil
}
