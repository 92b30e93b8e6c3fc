package sqlite

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
)

func geolocationColumn(geo *domain.Geolocation) (*string, error) {
	if geo == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(geo)
	if err != nil {
		return nil, fmt.Errorf("encode geolocation: %w", err)
	}
	s := string(encoded)
	return &s, nil
}

// geolocationFromColumn treats unreadable values as absent.
func geolocationFromColumn(col *string) *domain.Geolocation {
	if col == nil || *col == "" {
		return nil
	}
	var geo domain.Geolocation
	if err := json.Unmarshal([]byte(*col), &geo); err != nil {
		return nil
	}
	return &geo
}

// modernc.org/sqlite reports constraint failures only through the message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
