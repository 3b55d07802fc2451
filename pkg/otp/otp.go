package otp

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sender delivers the code over SMS. The actual provider integration lives
// outside this repository; the default sender only logs.
type Sender interface {
	Send(ctx context.Context, phone, body string) error
}

// CodeStore holds pending codes and verification attempt counts with a TTL.
type CodeStore interface {
	SetCode(ctx context.Context, phone, code string, ttl time.Duration) error
	// GetCode returns the pending code, or empty when none exists or it expired.
	GetCode(ctx context.Context, phone string) (string, error)
	// BumpAttempts increments and returns the attempt count for the phone.
	BumpAttempts(ctx context.Context, phone string, ttl time.Duration) (int, error)
	Clear(ctx context.Context, phone string) error
}

type Service struct {
	codes       CodeStore
	sender      Sender
	ttl         time.Duration
	digits      int
	maxAttempts int
	logger      zerolog.Logger
}

type ServiceConfig struct {
	Codes       CodeStore
	Sender      Sender
	TTL         time.Duration
	Digits      int
	MaxAttempts int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Codes == nil {
		return nil, errors.New("otp: code store is nil")
	}
	sender := cfg.Sender
	if sender == nil {
		sender = logSender{}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	digits := cfg.Digits
	if digits <= 0 {
		digits = 6
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Service{
		codes:       cfg.Codes,
		sender:      sender,
		ttl:         ttl,
		digits:      digits,
		maxAttempts: maxAttempts,
		logger:      log.With().Str("component", "otp").Logger(),
	}, nil
}

// Request mints a fresh code for the phone and hands it to the SMS sender.
// A new request replaces any pending code.
func (s *Service) Request(ctx context.Context, phone string) error {
	if s == nil || s.codes == nil {
		return errors.New("otp: service is not initialized")
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return errors.New("otp: empty phone")
	}
	code, err := s.generateCode()
	if err != nil {
		return err
	}
	if err := s.codes.SetCode(ctx, phone, code, s.ttl); err != nil {
		return errors.Wrap(err, "otp: store code")
	}
	if err := s.sender.Send(ctx, phone, "رمز التحقق الخاص بك في إدريسي مارت: "+code); err != nil {
		return errors.Wrap(err, "otp: send code")
	}
	s.logger.Info().Str("phone", phone).Msg("verification code issued")
	return nil
}

// Verify checks a submitted code. Expired, unknown, or over-tried codes
// report ok=false without error.
func (s *Service) Verify(ctx context.Context, phone, code string) (bool, error) {
	if s == nil || s.codes == nil {
		return false, errors.New("otp: service is not initialized")
	}
	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)
	if phone == "" || code == "" {
		return false, nil
	}
	attempts, err := s.codes.BumpAttempts(ctx, phone, s.ttl)
	if err != nil {
		return false, errors.Wrap(err, "otp: bump attempts")
	}
	if attempts > s.maxAttempts {
		_ = s.codes.Clear(ctx, phone)
		s.logger.Warn().Str("phone", phone).Msg("verification attempt cap reached")
		return false, nil
	}
	stored, err := s.codes.GetCode(ctx, phone)
	if err != nil {
		return false, errors.Wrap(err, "otp: load code")
	}
	if stored == "" || stored != code {
		return false, nil
	}
	if err := s.codes.Clear(ctx, phone); err != nil {
		return false, errors.Wrap(err, "otp: clear code")
	}
	return true, nil
}

func (s *Service) generateCode() (string, error) {
	max := big.NewInt(10)
	var b strings.Builder
	for i := 0; i < s.digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, "otp: generate code")
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// logSender stands in when no SMS provider is wired up.
type logSender struct{}

func (logSender) Send(_ context.Context, phone, body string) error {
	log.Info().Str("component", "otp").Str("phone", phone).Str("body", body).Msg("sms sender not configured, logging instead")
	return nil
}
