package storage

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// AssetPurpose captures high-level intent for storage layout decisions.
type AssetPurpose string

const (
	// PurposeCardPhoto is a photo attached to a card through the legacy form.
	PurposeCardPhoto AssetPurpose = "card-photo"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	CardID     string
	Slot       int
	UploadedAt time.Time
	Ext        string
}

// PathBuilder composes the object path for a given asset purpose.
type PathBuilder func(PathParams) (string, error)

var (
	pathBuilders = map[AssetPurpose]PathBuilder{
		PurposeCardPhoto: buildCardPhotoPath,
	}
	pathBuildersMu sync.RWMutex
)

// RegisterPathBuilder overrides or registers a builder for a specific purpose.
func RegisterPathBuilder(purpose AssetPurpose, builder PathBuilder) {
	pathBuildersMu.Lock()
	defer pathBuildersMu.Unlock()
	if builder == nil {
		delete(pathBuilders, purpose)
		return
	}
	pathBuilders[purpose] = builder
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose AssetPurpose, params PathParams) (string, error) {
	pathBuildersMu.RLock()
	builder, ok := pathBuilders[purpose]
	pathBuildersMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("storage: unsupported asset purpose %q", purpose)
	}
	return builder(params)
}

// buildCardPhotoPath yields cards/<cardID>/image<slot>-<unixMillis>.<ext>.
func buildCardPhotoPath(params PathParams) (string, error) {
	cardID, err := validateSegment("cardID", params.CardID)
	if err != nil {
		return "", err
	}
	if params.Slot <= 0 {
		return "", fmt.Errorf("storage: slot must be positive")
	}
	if params.UploadedAt.IsZero() {
		return "", fmt.Errorf("storage: uploadedAt is required")
	}
	ext, err := validateSegment("ext", strings.TrimPrefix(strings.ToLower(params.Ext), "."))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("cards/%s/image%d-%d.%s", cardID, params.Slot, params.UploadedAt.UnixMilli(), ext), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
