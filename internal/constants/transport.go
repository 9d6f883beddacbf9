package constants

import "time"

const (
	// ConnectionTimeout specifies the timeout duration for establishing an SSH connection.
	ConnectionTimeout = 15 * time.Second

	// DefaultSSHBinary is the client invoked by the exec transport.
	DefaultSSHBinary = "ssh"

	// DefaultSSHPort is used when the ssh config has no Port for an alias.
	DefaultSSHPort = "22"

	TransportModeExec   = "exec"
	TransportModeNative = "native"
)

// DefaultIdentityFiles are tried by the native transport when the ssh config names none.
var DefaultIdentityFiles = []string{"~/.ssh/id_ed25519", "~/.ssh/id_ecdsa", "~/.ssh/id_rsa"}
