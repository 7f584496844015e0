package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openclaw/session-server-go/internal/model"
	redisclient "github.com/openclaw/session-server-go/internal/redis"
)

var (
	ErrPairingNotFound   = errors.New("pairing request not found")
	ErrPairingNotPending = errors.New("pairing request is expired or already used")
)

const (
	authorizeNotFound int64 = iota
	authorizeRejected
	authorizeOK
)

// authorizeScript moves a request from pending to authorized in one step so a
// code can never be redeemed twice.
var authorizeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])

if redis.call('EXISTS', key) == 0 then
    return 0
end

local status = redis.call('HGET', key, 'status')
local expiresAt = tonumber(redis.call('HGET', key, 'expires_at'))

if status ~= 'pending' or now > expiresAt then
    return 1
end

redis.call('HSET', key, 'status', 'authorized', 'user_id', ARGV[2], 'sealed_tokens', ARGV[3])
return 2
`)

// consumeScript hands the sealed tokens to the device that opened the request
// and deletes the record in the same step.
var consumeScript = redis.NewScript(`
local key = KEYS[1]

local fields = redis.call('HMGET', key, 'status', 'device_id', 'sealed_tokens')
if fields[1] ~= 'authorized' or fields[2] ~= ARGV[1] or not fields[3] then
    return false
end

redis.call('DEL', key)
return fields[3]
`)

type PairingRequestRepository interface {
	FindByCode(ctx context.Context, code string) (*model.PairingRequest, error)
	Create(ctx context.Context, params model.CreatePairingRequestParams) (*model.PairingRequest, error)
	// Authorize returns ErrPairingNotFound for an unknown code and
	// ErrPairingNotPending once the request is expired or already authorized.
	Authorize(ctx context.Context, code, userID, sealedTokens string, now time.Time) error
	// Consume returns the sealed tokens of an authorized request exactly once.
	Consume(ctx context.Context, code, deviceID string) (string, error)
	Delete(ctx context.Context, code string) error
}

type pairingRequestRepo struct {
	client    *redis.Client
	retention time.Duration
}

// NewPairingRequestRepository stores requests as redis hashes that expire
// after retention, which must outlive the pairing window so expired codes
// still resolve to PairingExpired rather than PairingNotFound.
func NewPairingRequestRepository(client *redis.Client, retention time.Duration) PairingRequestRepository {
	return &pairingRequestRepo{client: client, retention: retention}
}

func (r *pairingRequestRepo) FindByCode(ctx context.Context, code string) (*model.PairingRequest, error) {
	fields, err := r.client.HGetAll(ctx, redisclient.PairingKey(code)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodePairingRequest(fields)
}

func (r *pairingRequestRepo) Create(ctx context.Context, params model.CreatePairingRequestParams) (*model.PairingRequest, error) {
	key := redisclient.PairingKey(params.AuthCode)

	created, err := r.client.HSetNX(ctx, key, "id", params.ID).Result()
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("pairing code collision")
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"auth_code", params.AuthCode,
			"device_name", params.DeviceName,
			"device_id", params.DeviceID,
			"status", string(model.PairingStatusPending),
			"created_at", params.CreatedAt.UnixMilli(),
			"expires_at", params.ExpiresAt.UnixMilli(),
		)
		pipe.PExpire(ctx, key, r.retention)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &model.PairingRequest{
		ID:         params.ID,
		AuthCode:   params.AuthCode,
		DeviceName: params.DeviceName,
		DeviceID:   params.DeviceID,
		Status:     model.PairingStatusPending,
		CreatedAt:  time.UnixMilli(params.CreatedAt.UnixMilli()),
		ExpiresAt:  time.UnixMilli(params.ExpiresAt.UnixMilli()),
	}, nil
}

func (r *pairingRequestRepo) Authorize(ctx context.Context, code, userID, sealedTokens string, now time.Time) error {
	result, err := authorizeScript.Run(
		ctx,
		r.client,
		[]string{redisclient.PairingKey(code)},
		now.UnixMilli(),
		userID,
		sealedTokens,
	).Int64()
	if err != nil {
		return err
	}

	switch result {
	case authorizeOK:
		return nil
	case authorizeNotFound:
		return ErrPairingNotFound
	case authorizeRejected:
		return ErrPairingNotPending
	default:
		return fmt.Errorf("unexpected authorize result %d", result)
	}
}

func (r *pairingRequestRepo) Consume(ctx context.Context, code, deviceID string) (string, error) {
	sealed, err := consumeScript.Run(ctx, r.client, []string{redisclient.PairingKey(code)}, deviceID).Text()
	if errors.Is(err, redis.Nil) {
		return "", ErrPairingNotFound
	}
	if err != nil {
		return "", err
	}
	return sealed, nil
}

func (r *pairingRequestRepo) Delete(ctx context.Context, code string) error {
	return r.client.Del(ctx, redisclient.PairingKey(code)).Err()
}

func decodePairingRequest(fields map[string]string) (*model.PairingRequest, error) {
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	return &model.PairingRequest{
		ID:           fields["id"],
		AuthCode:     fields["auth_code"],
		DeviceName:   fields["device_name"],
		DeviceID:     fields["device_id"],
		Status:       model.PairingStatus(fields["status"]),
		UserID:       fields["user_id"],
		CreatedAt:    time.UnixMilli(createdAt),
		ExpiresAt:    time.UnixMilli(expiresAt),
		SealedTokens: fields["sealed_tokens"],
	}, nil
}
