package alerts

import (
	"context"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"market_pulse_backend/models"
)

// AssetLookup resolves display metadata for a new alert's asset
type AssetLookup interface {
	GetSingle(ctx context.Context, class models.AssetClass, id string) *models.CachedAsset
}

// CreateInput is the owner's request to create an alert
type CreateInput struct {
	OwnerID     string
	AssetClass  string
	AssetID     string
	AssetName   string
	AssetSymbol string
	Direction   string
	TargetPrice decimal.Decimal
	// Channels defaults to every channel when nil
	Channels *models.NotificationChannels
}

// UpdateInput carries the optional fields of an owner edit
type UpdateInput struct {
	TargetPrice *decimal.Decimal
	IsActive    *bool
	Channels    *models.NotificationChannels
}

// Service implements alert CRUD for owners
type Service struct {
	repo   Repository
	assets AssetLookup
	logger *zap.Logger
}

// NewService creates an alert service. assets may be nil.
func NewService(repo Repository, assets AssetLookup, logger *zap.Logger) *Service {
	return &Service{repo: repo, assets: assets, logger: logger}
}

// Create validates input, rejects duplicates and persists a new active alert
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Alert, error) {
	alert, err := s.build(in)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindActiveEquivalents(ctx, *alert)
	if err != nil {
		return nil, err
	}
	for _, other := range existing {
		if other.TargetPrice.Equal(alert.TargetPrice) {
			return nil, ErrDuplicate
		}
	}

	if s.assets != nil && (alert.AssetName == "" || alert.AssetSymbol == "") {
		if asset := s.assets.GetSingle(ctx, alert.AssetClass, alert.AssetID); asset != nil {
			if alert.AssetName == "" {
				alert.AssetName = asset.DisplayName
			}
			if alert.AssetSymbol == "" {
				alert.AssetSymbol = asset.Symbol
			}
		}
	}

	if err := s.repo.Create(ctx, alert); err != nil {
		return nil, err
	}
	s.logger.Info("alert created",
		zap.String("alert_id", alert.ID),
		zap.String("owner_id", alert.OwnerID),
		zap.String("asset", string(alert.AssetClass)+"/"+alert.AssetID),
		zap.String("direction", string(alert.Direction)),
		zap.String("target", alert.TargetPrice.String()))
	return alert, nil
}

func (s *Service) build(in CreateInput) (*models.Alert, error) {
	if strings.TrimSpace(in.OwnerID) == "" {
		return nil, validationError("owner is required")
	}
	class, ok := models.ParseAssetClass(in.AssetClass)
	if !ok {
		return nil, validationError("asset_class must be crypto or equity")
	}
	assetID := strings.TrimSpace(in.AssetID)
	if assetID == "" {
		return nil, validationError("asset_id is required")
	}
	if class == models.AssetClassEquity {
		assetID = strings.ToUpper(assetID)
	} else {
		assetID = strings.ToLower(assetID)
	}
	direction, ok := models.ParseDirection(in.Direction)
	if !ok {
		return nil, validationError("direction must be above or below")
	}
	if !in.TargetPrice.IsPositive() {
		return nil, validationError("target_price must be greater than zero")
	}
	for field, value := range map[string]string{"asset_id": assetID, "asset_name": in.AssetName, "asset_symbol": in.AssetSymbol} {
		if strings.IndexFunc(value, unicode.IsControl) >= 0 {
			return nil, validationError("%s must not contain control characters", field)
		}
	}

	channels := models.NotificationChannels{Email: true, InApp: true}
	if in.Channels != nil {
		var err error
		channels, err = models.NewNotificationChannels(in.Channels.Email, in.Channels.InApp)
		if err != nil {
			return nil, validationError("%v", err)
		}
	}

	return &models.Alert{
		OwnerID:              in.OwnerID,
		AssetClass:           class,
		AssetID:              assetID,
		AssetName:            strings.TrimSpace(in.AssetName),
		AssetSymbol:          strings.ToUpper(strings.TrimSpace(in.AssetSymbol)),
		Direction:            direction,
		TargetPrice:          in.TargetPrice,
		IsActive:             true,
		NotificationChannels: channels,
	}, nil
}

func (s *Service) Get(ctx context.Context, ownerID, id string) (*models.Alert, error) {
	return s.repo.Get(ctx, ownerID, id)
}

func (s *Service) List(ctx context.Context, ownerID string, filter Filter) ([]models.Alert, error) {
	return s.repo.List(ctx, ownerID, filter)
}

// Update applies an owner edit. Triggered alerts are immutable.
func (s *Service) Update(ctx context.Context, ownerID, id string, in UpdateInput) (*models.Alert, error) {
	if in.TargetPrice != nil && !in.TargetPrice.IsPositive() {
		return nil, validationError("target_price must be greater than zero")
	}
	if in.Channels != nil {
		if _, err := models.NewNotificationChannels(in.Channels.Email, in.Channels.InApp); err != nil {
			return nil, validationError("%v", err)
		}
	}

	current, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if current.Triggered {
		return nil, ErrAlreadyTriggered
	}

	// Retargeting or resuming may produce a copy of another active alert
	candidate := *current
	if in.TargetPrice != nil {
		candidate.TargetPrice = *in.TargetPrice
	}
	if in.IsActive != nil {
		candidate.IsActive = *in.IsActive
	}
	if candidate.IsActive && (in.TargetPrice != nil || (in.IsActive != nil && !current.IsActive)) {
		existing, err := s.repo.FindActiveEquivalents(ctx, candidate)
		if err != nil {
			return nil, err
		}
		for _, other := range existing {
			if other.ID != candidate.ID && other.TargetPrice.Equal(candidate.TargetPrice) {
				return nil, ErrDuplicate
			}
		}
	}

	err = s.repo.UpdateOwned(ctx, ownerID, id, OwnerUpdate{
		TargetPrice: in.TargetPrice,
		IsActive:    in.IsActive,
		Channels:    in.Channels,
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, ownerID, id)
}

func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	return s.repo.Delete(ctx, ownerID, id)
}

// DeleteTriggered removes every triggered alert of the owner and leaves the rest untouched
func (s *Service) DeleteTriggered(ctx context.Context, ownerID string) (int64, error) {
	n, err := s.repo.DeleteTriggered(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("triggered alerts deleted", zap.String("owner_id", ownerID), zap.Int64("count", n))
	return n, nil
}
