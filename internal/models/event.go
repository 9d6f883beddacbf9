package models

import "time"

// OperationEvent is published after every user-initiated device operation.
type OperationEvent struct {
	ID        string    `json:"operation_id"`     // Correlates log lines of one logical operation
	Host      string    `json:"host"`             // SSH host alias
	Operation string    `json:"operation"`        // attach, detach, reconnect, list_attached, ...
	Device    string    `json:"device,omitempty"` // vendor:product, empty for list operations
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceSnapshot is the published form of one device list.
type DeviceSnapshot struct {
	Host      string             `json:"host"`
	Kind      ListKind           `json:"kind"`
	Devices   []DeviceDescriptor `json:"devices"`
	Timestamp time.Time          `json:"timestamp"`
}
