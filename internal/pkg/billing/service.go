package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/overseer-bot/shop/app/models"
	"github.com/rs/zerolog/log"
)

// Service issues checkout sessions and records their pending correlations.
type Service struct {
	repo     Repository
	provider CheckoutProvider
	catalog  *TierCatalog
	validate *validator.Validate

	successURL string
	cancelURL  string

	tokens TokenSource
	now    func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithTokenSource replaces the crypto/rand correlation token generator.
func WithTokenSource(src TokenSource) ServiceOption {
	return func(s *Service) { s.tokens = src }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a session issuer from injected collaborators.
func NewService(repo Repository, provider CheckoutProvider, catalog *TierCatalog, successURL, cancelURL string, opts ...ServiceOption) *Service {
	s := &Service{
		repo:       repo,
		provider:   provider,
		catalog:    catalog,
		validate:   validator.New(),
		successURL: successURL,
		cancelURL:  cancelURL,
		tokens:     NewCorrelationToken,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCheckout validates the request, opens a processor checkout session and
// only then persists the pending correlation. It returns the redirect URL.
func (s *Service) CreateCheckout(ctx context.Context, in CheckoutInput) (string, error) {
	in.PriceID = strings.TrimSpace(in.PriceID)
	if err := s.validateInput(in); err != nil {
		return "", err
	}
	if !s.catalog.HasPrice(in.PriceID) {
		return "", ErrInvalidPrice
	}

	token, err := s.tokens()
	if err != nil {
		return "", err
	}

	log.Debug().Str("user_id", string(in.UserID)).Str("guild_id", string(in.GuildID)).
		Str("price_id", in.PriceID).Msg("creating checkout session")

	sess, err := s.provider.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		PriceID:          in.PriceID,
		CorrelationToken: token,
		SuccessURL:       s.successURL,
		CancelURL:        s.cancelURL,
	})
	if err != nil {
		return "", &ProcessorError{Op: "create checkout session", Err: err}
	}
	if sess == nil || strings.TrimSpace(sess.URL) == "" {
		return "", &ProcessorError{Op: "create checkout session", Err: errors.New("processor returned no session url")}
	}

	correlation := &models.PendingCorrelation{
		Token:     token,
		UserID:    string(in.UserID),
		GuildID:   string(in.GuildID),
		PriceID:   in.PriceID,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreatePendingCorrelation(ctx, correlation); err != nil {
		return "", &StoreError{Op: "store pending correlation", Err: err}
	}

	log.Debug().Str("session_id", sess.ID).Str("user_id", correlation.UserID).Msg("stored pending correlation")
	return sess.URL, nil
}

// PruneCorrelations deletes correlations created before the retention window.
func (s *Service) PruneCorrelations(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repo.PruneCorrelations(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, &StoreError{Op: "prune correlations", Err: err}
	}
	return n, nil
}

func (s *Service) validateInput(in CheckoutInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, checkoutFieldName(fe.StructField()))
	}
	return &ValidationError{Fields: fields}
}

func checkoutFieldName(structField string) string {
	switch structField {
	case "UserID":
		return "user_id"
	case "GuildID":
		return "guild_id"
	case "PriceID":
		return "price"
	default:
		return strings.ToLower(structField)
	}
}
