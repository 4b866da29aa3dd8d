package domain

import (
	"errors"
	"fmt"
)

// ErrInvalid is wrapped by all validation errors
var ErrInvalid = errors.New("invalid value")

// Validate checks that the position is physically possible
func (p ISSPosition) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v must be between -90 and 90", ErrInvalid, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v must be between -180 and 180", ErrInvalid, p.Longitude)
	}
	if p.Altitude != nil && (*p.Altitude < 0 || *p.Altitude > 10000) {
		return fmt.Errorf("%w: altitude %v must be between 0 and 10000 km", ErrInvalid, *p.Altitude)
	}
	if p.Velocity != nil && (*p.Velocity < 0 || *p.Velocity > 30000) {
		return fmt.Errorf("%w: velocity %v must be between 0 and 30000 km/h", ErrInvalid, *p.Velocity)
	}
	switch p.Visibility {
	case "", "visible", "eclipsed", "daylight":
	default:
		return fmt.Errorf("%w: visibility %q must be visible, eclipsed or daylight", ErrInvalid, p.Visibility)
	}
	return nil
}

// Fields returns the position columns for upsert, created_at is left to the store
func (p ISSPosition) Fields() map[string]any {
	return map[string]any{
		"latitude":   p.Latitude,
		"longitude":  p.Longitude,
		"altitude":   p.Altitude,
		"velocity":   p.Velocity,
		"visibility": p.Visibility,
	}
}
