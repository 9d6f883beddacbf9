package constants

import "time"

const (
	// DataCommandTimeout bounds list/attach/detach/reconnect invocations.
	DataCommandTimeout = 30 * time.Second
	// PrimeTimeout bounds the fire-and-forget sudo priming and invalidation commands.
	PrimeTimeout = 10 * time.Second

	DefaultToolPath = "~/.local/bin/vm-device"
	DefaultWorkers  = 4
)

// Remote tool flags
const (
	FlagList          = "--list"
	FlagListAvailable = "--list-available"
	FlagAttach        = "--attach"
	FlagDetach        = "--detach"
	FlagReconnect     = "--reconnect"
	FlagJSON          = "--json"
)

// Operation names used in logs and published events
const (
	OperationListAttached  = "list_attached"
	OperationListAvailable = "list_available"
	OperationAttach        = "attach"
	OperationDetach        = "detach"
	OperationReconnect     = "reconnect"
)

// Status messages shown by the front-end
const (
	StatusLoadedDevices     = "Loaded devices."
	StatusFailedLoadDevices = "Failed to load devices."
	StatusRefreshAttached   = "Refreshing attached devices..."
	StatusRefreshAvailable  = "Refreshing available devices..."
	StatusParseFailed       = "Failed to parse JSON output"
)
