package cloudinary

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// allowedTypes lists the MIME prefixes accepted for assignment
// attachments. Everything else is rejected before upload.
var allowedTypes = []string{
	"image/",
	"application/pdf",
	"application/zip",
	"text/",
}

// ErrUnsupportedType is returned when an attachment's detected MIME
// type is not on the allow list.
var ErrUnsupportedType = fmt.Errorf("unsupported attachment type")

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service uploads assignment attachments to Cloudinary.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: cfg.Folder,
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload validates the attachment's MIME type and sends it to
// Cloudinary, returning a secure URL.
func (s *Service) Upload(ctx context.Context, name string, data []byte) (string, error) {
	detected := mimetype.Detect(data)
	if !typeAllowed(detected.String()) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, detected.String())
	}

	folder := strings.Trim(s.folder, "/")
	publicID := buildPublicID(name)

	params := uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID,
		ResourceType: "auto",
	}

	result, err := s.client.Upload.Upload(ctx, bytes.NewReader(data), params)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}

	s.logger.Info().
		Str("public_id", result.PublicID).
		Str("mime_type", detected.String()).
		Msg("attachment uploaded to cloudinary")

	return result.SecureURL, nil
}

func typeAllowed(mime string) bool {
	for _, allowed := range allowedTypes {
		if strings.HasPrefix(mime, allowed) {
			return true
		}
	}
	return false
}

func buildPublicID(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("attachment-%d", time.Now().Unix())
	}

	return fmt.Sprintf("%s-%d", base, time.Now().Unix())
}
