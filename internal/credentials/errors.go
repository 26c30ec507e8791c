package credentials

import "errors"

var (
	// ErrNotConnected means no usable credential is stored.
	ErrNotConnected = errors.New("calendar is not connected")

	// ErrDecrypt means a credential file exists but cannot be opened with
	// the configured key. Usually the key was rotated; re-authentication
	// is required.
	ErrDecrypt = errors.New("failed to decrypt tokens. This may happen if the encryption key has changed")
)
