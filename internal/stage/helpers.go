package stage

import (
	"encoding/json"
	"strings"

	"fitstogo/internal/services"
	"fitstogo/internal/services/kieai"
)

// ParseMask decodes the garment region stored on a session. An empty value
// means no region was selected.
func ParseMask(raw string) (*kieai.Mask, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var mask kieai.Mask
	if err := json.Unmarshal([]byte(raw), &mask); err != nil {
		return nil, services.Wrap(
			services.ErrValidation, "stage", "parse mask",
			"Garment region missing or invalid; recreate the try-on", err)
	}
	return &mask, nil
}

// EncodeMask is the inverse of ParseMask.
func EncodeMask(mask *kieai.Mask) string {
	if mask == nil {
		return ""
	}
	data, err := json.Marshal(mask)
	if err != nil {
		return ""
	}
	return string(data)
}
