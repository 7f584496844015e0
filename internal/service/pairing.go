package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-server-go/internal/database"
	apperrors "github.com/openclaw/session-server-go/internal/errors"
	"github.com/openclaw/session-server-go/internal/model"
	"github.com/openclaw/session-server-go/internal/repository"
	"github.com/openclaw/session-server-go/internal/sse"
	"github.com/openclaw/session-server-go/internal/util"
)

const maxDeviceFieldLength = 128

// PairingEventAuthorized is published on the request's topic once a user
// approves it. The event carries no tokens; the device still polls for them.
const PairingEventAuthorized = "authorized"

// PairingTopic names the event topic for one pairing code.
func PairingTopic(code string) string {
	return "pairing:" + code
}

// PairingPublisher is satisfied by *sse.Broker.
type PairingPublisher interface {
	Publish(ctx context.Context, topic string, event sse.Event) error
}

// TxRunner is satisfied by *database.DB.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

type PairingInitiation struct {
	AuthCode         string    `json:"authCode"`
	ExpiresAt        time.Time `json:"expiresAt"`
	AuthorizationURL string    `json:"authorizationUrl"`
}

type PairingPollResult struct {
	Status    model.PairingStatus `json:"status"`
	ExpiresAt time.Time           `json:"expiresAt"`
	Tokens    *TokenPair          `json:"tokens,omitempty"`
}

type PairingConfig struct {
	AuthorizeURL string
	RequestTTL   time.Duration
}

// PairingService links a device that cannot complete a browser login to a
// user who is signed in elsewhere. The device opens a request, the user
// approves it from the browser, and the device collects its tokens once.
type PairingService struct {
	tx          TxRunner
	tokens      *TokenService
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
	pairingRepo repository.PairingRequestRepository
	encryptor   *util.Encryptor
	publisher   PairingPublisher
	cfg         PairingConfig
	now         func() time.Time
}

func NewPairingService(
	tx TxRunner,
	tokens *TokenService,
	sessionRepo repository.SessionRepository,
	userRepo repository.UserRepository,
	pairingRepo repository.PairingRequestRepository,
	encryptor *util.Encryptor,
	cfg PairingConfig,
) *PairingService {
	return &PairingService{
		tx:          tx,
		tokens:      tokens,
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		pairingRepo: pairingRepo,
		encryptor:   encryptor,
		cfg:         cfg,
		now:         time.Now,
	}
}

// WithPublisher makes Authorize announce approvals to waiting devices.
func (s *PairingService) WithPublisher(publisher PairingPublisher) *PairingService {
	s.publisher = publisher
	return s
}

func (s *PairingService) Initiate(ctx context.Context, deviceName, deviceID string) (*PairingInitiation, error) {
	deviceName = strings.TrimSpace(deviceName)
	deviceID = strings.TrimSpace(deviceID)
	if deviceName == "" {
		return nil, apperrors.MissingRequired("deviceName")
	}
	if deviceID == "" {
		return nil, apperrors.MissingRequired("deviceId")
	}
	if len(deviceName) > maxDeviceFieldLength || len(deviceID) > maxDeviceFieldLength {
		return nil, apperrors.ValidationError("Device fields are too long")
	}

	code, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	now := s.now()
	req, err := s.pairingRepo.Create(ctx, model.CreatePairingRequestParams{
		ID:         uuid.NewString(),
		AuthCode:   code,
		DeviceName: deviceName,
		DeviceID:   deviceID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.RequestTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create pairing request: %w", err)
	}

	log.Info().
		Str("requestId", req.ID).
		Str("deviceName", deviceName).
		Time("expiresAt", req.ExpiresAt).
		Msg("pairing request created")

	return &PairingInitiation{
		AuthCode:         code,
		ExpiresAt:        req.ExpiresAt,
		AuthorizationURL: s.cfg.AuthorizeURL + "?code=" + url.QueryEscape(code),
	}, nil
}

// Lookup lets the browser show which device is asking before it approves.
func (s *PairingService) Lookup(ctx context.Context, code string) (*model.PairingRequest, error) {
	return s.findOpen(ctx, code)
}

// Authorize approves a pending request for the signed-in user. The session
// row and the pending -> authorized transition commit together; a code can
// be redeemed at most once.
func (s *PairingService) Authorize(ctx context.Context, code, userID string) (*IssuedSession, error) {
	req, err := s.findOpen(ctx, code)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, apperrors.UserNotFound()
	}

	var issued *IssuedSession
	transitioned := false

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		issued, err = issueSession(ctx, s.tokens, s.sessionRepo.WithTx(tx), identityOf(user))
		if err != nil {
			return err
		}

		sealed, err := s.sealTokens(issued.Tokens)
		if err != nil {
			return err
		}

		err = s.pairingRepo.Authorize(ctx, code, user.ID, sealed, s.now())
		switch {
		case errors.Is(err, repository.ErrPairingNotFound):
			return apperrors.PairingNotFound()
		case errors.Is(err, repository.ErrPairingNotPending):
			return apperrors.PairingExpired()
		case err != nil:
			return fmt.Errorf("authorize pairing request: %w", err)
		}
		transitioned = true
		return nil
	})
	if err != nil {
		if transitioned {
			// Commit failed after the request was marked authorized; drop the
			// sealed tokens so the device cannot collect a session that was
			// never stored.
			if delErr := s.pairingRepo.Delete(ctx, code); delErr != nil {
				log.Error().Err(delErr).Str("requestId", req.ID).Msg("failed to discard pairing request")
			}
		}
		return nil, err
	}

	log.Info().
		Str("requestId", req.ID).
		Str("userId", user.ID).
		Str("sessionId", issued.Session.ID).
		Msg("pairing request authorized")

	s.announce(ctx, code, req.ID)

	return issued, nil
}

func (s *PairingService) announce(ctx context.Context, code, requestID string) {
	if s.publisher == nil {
		return
	}
	data, _ := json.Marshal(map[string]string{"status": string(model.PairingStatusAuthorized)})
	event := sse.Event{Type: PairingEventAuthorized, Data: data}
	if err := s.publisher.Publish(ctx, PairingTopic(code), event); err != nil {
		log.Warn().Err(err).Str("requestId", requestID).Msg("failed to announce pairing authorization")
	}
}

// Poll reports the request status to the device that opened it. Once
// authorized, the tokens are handed over on the first poll and the request is
// gone afterwards.
func (s *PairingService) Poll(ctx context.Context, code, deviceID string) (*PairingPollResult, error) {
	req, err := s.findForDevice(ctx, code, deviceID)
	if err != nil {
		return nil, err
	}

	if req.Status == model.PairingStatusAuthorized {
		sealed, err := s.pairingRepo.Consume(ctx, code, deviceID)
		if errors.Is(err, repository.ErrPairingNotFound) {
			return nil, apperrors.PairingExpired()
		}
		if err != nil {
			return nil, fmt.Errorf("consume pairing request: %w", err)
		}

		tokens, err := s.openTokens(sealed)
		if err != nil {
			return nil, err
		}

		log.Info().Str("requestId", req.ID).Msg("pairing tokens collected")
		return &PairingPollResult{
			Status:    model.PairingStatusAuthorized,
			ExpiresAt: req.ExpiresAt,
			Tokens:    tokens,
		}, nil
	}

	if req.EffectiveStatus(s.now()) == model.PairingStatusExpired {
		return nil, apperrors.PairingExpired()
	}

	return &PairingPollResult{
		Status:    model.PairingStatusPending,
		ExpiresAt: req.ExpiresAt,
	}, nil
}

// Status is Poll without the token handover. Waiting devices use it to learn
// the state they subscribed in.
func (s *PairingService) Status(ctx context.Context, code, deviceID string) (*PairingPollResult, error) {
	req, err := s.findForDevice(ctx, code, deviceID)
	if err != nil {
		return nil, err
	}

	if req.Status != model.PairingStatusAuthorized && req.EffectiveStatus(s.now()) == model.PairingStatusExpired {
		return nil, apperrors.PairingExpired()
	}

	return &PairingPollResult{Status: req.Status, ExpiresAt: req.ExpiresAt}, nil
}

func (s *PairingService) findForDevice(ctx context.Context, code, deviceID string) (*model.PairingRequest, error) {
	req, err := s.pairingRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("find pairing request: %w", err)
	}
	if req == nil || !util.ConstantTimeEqual(req.DeviceID, deviceID) {
		return nil, apperrors.PairingNotFound()
	}
	return req, nil
}

func (s *PairingService) findOpen(ctx context.Context, code string) (*model.PairingRequest, error) {
	if code == "" {
		return nil, apperrors.PairingNotFound()
	}

	req, err := s.pairingRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("find pairing request: %w", err)
	}
	if req == nil {
		return nil, apperrors.PairingNotFound()
	}
	if req.EffectiveStatus(s.now()) != model.PairingStatusPending {
		return nil, apperrors.PairingExpired()
	}
	return req, nil
}

func (s *PairingService) sealTokens(tokens TokenPair) (string, error) {
	data, err := json.Marshal(tokens)
	if err != nil {
		return "", fmt.Errorf("marshal tokens: %w", err)
	}
	sealed, err := s.encryptor.Encrypt(string(data))
	if err != nil {
		return "", fmt.Errorf("seal tokens: %w", err)
	}
	return sealed, nil
}

func (s *PairingService) openTokens(sealed string) (*TokenPair, error) {
	plaintext, err := s.encryptor.Decrypt(sealed)
	if err != nil {
		return nil, fmt.Errorf("open tokens: %w", err)
	}
	var tokens TokenPair
	if err := json.Unmarshal([]byte(plaintext), &tokens); err != nil {
		return nil, fmt.Errorf("unmarshal tokens: %w", err)
	}
	return &tokens, nil
}
