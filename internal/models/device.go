package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidDeviceID is returned when a vendor:product pair is malformed.
var ErrInvalidDeviceID = errors.New("invalid device id")

// ErrMissingDeviceList is returned when a list payload lacks the expected key.
var ErrMissingDeviceList = errors.New("device list missing from payload")

var deviceCodePattern = regexp.MustCompile(`^[0-9a-fA-F]{4}$`)

// DeviceDescriptor is one USB device as reported by the remote tool.
type DeviceDescriptor struct {
	Vendor  string `json:"vendor"`  // 4-hex-digit vendor id
	Product string `json:"product"` // 4-hex-digit product id
	Name    string `json:"name"`    // Display name
	Status  string `json:"status"`  // Status reported by the remote tool
}

// ID returns the vendor:product identifier of the device.
func (d DeviceDescriptor) ID() DeviceID {
	return DeviceID{Vendor: strings.ToLower(d.Vendor), Product: strings.ToLower(d.Product)}
}

// DeviceID identifies a USB device by its vendor and product codes.
type DeviceID struct {
	Vendor  string
	Product string
}

// NewDeviceID validates both codes and returns a normalised DeviceID.
func NewDeviceID(vendor, product string) (DeviceID, error) {
	if !deviceCodePattern.MatchString(vendor) || !deviceCodePattern.MatchString(product) {
		return DeviceID{}, fmt.Errorf("%w: %q:%q", ErrInvalidDeviceID, vendor, product)
	}
	return DeviceID{Vendor: strings.ToLower(vendor), Product: strings.ToLower(product)}, nil
}

// ParseDeviceID parses a "vendor:product" string such as "1d6b:0002".
func ParseDeviceID(s string) (DeviceID, error) {
	vendor, product, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return DeviceID{}, fmt.Errorf("%w: %q", ErrInvalidDeviceID, s)
	}
	return NewDeviceID(vendor, product)
}

func (id DeviceID) String() string {
	return id.Vendor + ":" + id.Product
}

// ListKind selects which device list a payload carries.
type ListKind string

const (
	ListAttached  ListKind = "attached"
	ListAvailable ListKind = "available"
)

// Key returns the JSON key holding the device array for this list.
func (k ListKind) Key() string {
	return string(k) + "_devices"
}

// DecodeDevices extracts the device array for kind from a list payload.
func DecodeDevices(payload json.RawMessage, kind ListKind) ([]DeviceDescriptor, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("failed to decode device list: %w", err)
	}

	raw, ok := body[kind.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingDeviceList, kind.Key())
	}

	var devices []DeviceDescriptor
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", kind.Key(), err)
	}
	return devices, nil
}

// ActionResponse is the body printed by --attach, --detach and --reconnect.
type ActionResponse struct {
	Success *bool  `json:"success,omitempty"` // Explicit outcome, when the tool reports one
	Error   string `json:"error,omitempty"`   // Failure detail
	Message string `json:"message,omitempty"` // Free-form detail
}
