package models

import (
	"fmt"
	"time"
)

// LocationStatus describes how far a location resolution got
type LocationStatus int

const (
	LocationResolving LocationStatus = iota
	LocationResolved
	LocationUnresolved
)

func (s LocationStatus) String() string {
	switch s {
	case LocationResolving:
		return "resolving"
	case LocationResolved:
		return "resolved"
	case LocationUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// LocationSnapshot is the device position at a point in time, with the
// reverse-geocoded address when one could be found. Address is empty when
// the lookup failed or has not run.
type LocationSnapshot struct {
	Status      LocationStatus `json:"status"`
	Latitude    float64        `json:"latitude,omitempty"`
	Longitude   float64        `json:"longitude,omitempty"`
	Coordinates string         `json:"coordinates,omitempty"`
	Address     string         `json:"address,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// Resolving returns the snapshot shown while a position request is pending
func Resolving() LocationSnapshot {
	return LocationSnapshot{Status: LocationResolving}
}

// Resolved builds a resolved snapshot for the given coordinates
func Resolved(latitude, longitude float64, address string) LocationSnapshot {
	return LocationSnapshot{
		Status:      LocationResolved,
		Latitude:    latitude,
		Longitude:   longitude,
		Coordinates: FormatCoordinates(latitude, longitude),
		Address:     address,
	}
}

// Unresolved builds a snapshot for a failed position request
func Unresolved(reason string) LocationSnapshot {
	return LocationSnapshot{Status: LocationUnresolved, Reason: reason}
}

// HasAddress reports whether a reverse-geocoded address is present
func (l LocationSnapshot) HasAddress() bool {
	return l.Status == LocationResolved && l.Address != ""
}

// FormatCoordinates renders a coordinate pair with six decimals
func FormatCoordinates(latitude, longitude float64) string {
	return fmt.Sprintf("%.6f, %.6f", latitude, longitude)
}

// File is an in-memory file ready to be sent to the upload endpoint
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// CapturedFileName returns the file name used for captured photos
func CapturedFileName(at time.Time) string {
	return fmt.Sprintf("material-%d.png", at.UnixMilli())
}

// StoredUser is the staff profile persisted after login
type StoredUser struct {
	StaffID          *int   `json:"staff_id,omitempty" yaml:"staff_id,omitempty"`
	StaffFullName    string `json:"staff_full_name,omitempty" yaml:"staff_full_name,omitempty"`
	StaffCode        string `json:"staff_code,omitempty" yaml:"staff_code,omitempty"`
	UserTypeID       *int   `json:"user_type_id,omitempty" yaml:"user_type_id,omitempty"`
	CompanyID        *int   `json:"company_id,omitempty" yaml:"company_id,omitempty"`
	CompanyName      string `json:"company_name,omitempty" yaml:"company_name,omitempty"`
	StaffInfoID      *int   `json:"staff_info_id,omitempty" yaml:"staff_info_id,omitempty"`
	DepartmentID     *int   `json:"department_id,omitempty" yaml:"department_id,omitempty"`
	DepartmentName   string `json:"department_name,omitempty" yaml:"department_name,omitempty"`
	ImagesPath       string `json:"images_path,omitempty" yaml:"images_path,omitempty"`
	StatusID         *int   `json:"status_id,omitempty" yaml:"status_id,omitempty"`
	IsRequestApprove *bool  `json:"is_request_approve,omitempty" yaml:"is_request_approve,omitempty"`
}
