// Package models holds the indicator registry record types.
package models

import (
	"time"

	"indexcover/pkg/domain"
)

// Record is the latest verified reading for one named indicator. Records are
// created implicitly by the first accepted update and never deleted.
type Record struct {
	Name        domain.Indicator `json:"name"`
	Value       uint64           `json:"value"`
	LastUpdated time.Time        `json:"last_updated"`
}
