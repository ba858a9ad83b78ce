package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/vbonduro/adpost/internal/domain"
	"github.com/vbonduro/adpost/internal/form"
	"github.com/vbonduro/adpost/internal/photostore"
)

// ErrListingNotFound is returned when a listing or one of its photos does not
// exist.
var ErrListingNotFound = errors.New("listing not found")

// adRepository is the subset of store.AdStore that ListingService requires.
type adRepository interface {
	Create(ctx context.Context, ad *domain.Ad) (*domain.Ad, error)
	GetByID(ctx context.Context, id int64) (*domain.Ad, error)
	List(ctx context.Context, limit int) ([]*domain.Ad, error)
	Delete(ctx context.Context, id int64) error
}

// adPhotoRepository is the subset of store.AdPhotoStore that ListingService requires.
type adPhotoRepository interface {
	Create(ctx context.Context, adID int64, position int, storageKey, mimeType string, size int64) (*domain.AdPhoto, error)
	ListByAdID(ctx context.Context, adID int64) ([]*domain.AdPhoto, error)
	GetByPosition(ctx context.Context, adID int64, position int) (*domain.AdPhoto, error)
}

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

// plainText strips all markup from user-entered text.
func plainText(s string) string {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// freeTextFields are sanitized before an ad is stored.
var freeTextFields = map[string]bool{
	"projectName": true,
	"adTitle":     true,
	"description": true,
}

// adFromFields builds the ad to store, stripping markup from free text.
func adFromFields(values map[string]string) *domain.Ad {
	clean := make(map[string]string, len(values))
	for name, v := range values {
		if freeTextFields[name] {
			v = plainText(v)
		}
		clean[name] = v
	}
	return domain.NewAd(clean)
}

// Listing bundles a stored ad with its photos in display order.
type Listing struct {
	*domain.Ad
	Photos []*domain.AdPhoto
}

// ListingService publishes finished drafts as listings. It reads photo
// blobs from preview storage and keeps its own copies in listing storage,
// so drafts can release their previews as soon as submission returns.
type ListingService struct {
	adStore    adRepository
	photoStore adPhotoRepository
	previews   photostore.PhotoStore
	photos     photostore.PhotoStore
	logger     *slog.Logger
}

func NewListingService(
	adStore adRepository,
	photoStore adPhotoRepository,
	previews photostore.PhotoStore,
	photos photostore.PhotoStore,
	logger *slog.Logger,
) *ListingService {
	return &ListingService{
		adStore:    adStore,
		photoStore: photoStore,
		previews:   previews,
		photos:     photos,
		logger:     logger,
	}
}

// SubmitAd stores the ad and copies its photos into listing storage. On
// failure nothing of the listing is left behind.
func (s *ListingService) SubmitAd(ctx context.Context, sub form.Submission) (*domain.Ad, error) {
	s.logger.Info("submit ad started", "photos", len(sub.Photos))

	ad, err := s.adStore.Create(ctx, adFromFields(sub.Fields))
	if err != nil {
		return nil, fmt.Errorf("failed to store ad: %w", err)
	}

	prefix := fmt.Sprintf("ad_%d", ad.ID)
	var saved []string
	for i, p := range sub.Photos {
		key, err := s.copyPreview(ctx, prefix, p.Preview, p.MIMEType)
		if err == nil {
			saved = append(saved, key)
			_, err = s.photoStore.Create(ctx, ad.ID, i, key, p.MIMEType, p.Size)
		}
		if err != nil {
			s.rollback(ctx, ad.ID, saved)
			return nil, fmt.Errorf("failed to store photo %d: %w", i, err)
		}
	}

	s.logger.Info("submit ad complete", "ad_id", ad.ID, "photos", len(saved))
	return ad, nil
}

func (s *ListingService) copyPreview(ctx context.Context, prefix, previewKey, mimeType string) (string, error) {
	rc, _, err := s.previews.Get(ctx, previewKey)
	if err != nil {
		return "", fmt.Errorf("failed to open preview: %w", err)
	}
	defer rc.Close()

	key, err := s.photos.Save(ctx, prefix, mimeType, rc)
	if err != nil {
		return "", fmt.Errorf("failed to save photo: %w", err)
	}
	return key, nil
}

func (s *ListingService) rollback(ctx context.Context, adID int64, keys []string) {
	for _, key := range keys {
		if err := s.photos.Delete(ctx, key); err != nil {
			s.logger.Error("failed to roll back photo file", "ad_id", adID, "storage_key", key, "error", err)
		}
	}
	if err := s.adStore.Delete(ctx, adID); err != nil {
		s.logger.Error("failed to roll back ad record", "ad_id", adID, "error", err)
	}
}

// GetListing returns the ad with its photos, or ErrListingNotFound.
func (s *ListingService) GetListing(ctx context.Context, id int64) (*Listing, error) {
	ad, err := s.adStore.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ad: %w", err)
	}
	if ad == nil {
		return nil, ErrListingNotFound
	}

	photos, err := s.photoStore.ListByAdID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return &Listing{Ad: ad, Photos: photos}, nil
}

// RecentListings returns the newest ads with their photos.
func (s *ListingService) RecentListings(ctx context.Context, limit int) ([]*Listing, error) {
	ads, err := s.adStore.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	listings := make([]*Listing, 0, len(ads))
	for _, ad := range ads {
		photos, err := s.photoStore.ListByAdID(ctx, ad.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list photos for ad %d: %w", ad.ID, err)
		}
		listings = append(listings, &Listing{Ad: ad, Photos: photos})
	}
	return listings, nil
}

// OpenPhoto streams the photo at position of a listing. The caller closes
// the reader.
func (s *ListingService) OpenPhoto(ctx context.Context, adID int64, position int) (io.ReadCloser, string, error) {
	p, err := s.photoStore.GetByPosition(ctx, adID, position)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get photo record: %w", err)
	}
	if p == nil {
		return nil, "", ErrListingNotFound
	}

	rc, mimeType, err := s.photos.Get(ctx, p.StorageKey)
	if errors.Is(err, photostore.ErrNotFound) {
		return nil, "", ErrListingNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open photo: %w", err)
	}
	if p.MimeType != "" {
		mimeType = p.MimeType
	}
	return rc, mimeType, nil
}
