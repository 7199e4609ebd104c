package models

import "fmt"

// Money is a fixed-point amount in minor currency units (paise).
type Money int64

// String formats the amount as rupees with two decimals.
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s₹%d.%02d", sign, v/100, v%100)
}

// Location is an optional address with coordinates.
type Location struct {
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// IsZero reports whether nothing was set.
func (l Location) IsZero() bool {
	return l.Address == "" && l.Latitude == 0 && l.Longitude == 0
}
