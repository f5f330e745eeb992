package dispatch

import "errors"

// Platform implementations wrap their transport errors with these
// sentinels so the dispatcher can classify without knowing the SDK.
var (
	// ErrPermissionDenied: the bot lacks rank or capability for the action.
	// Expected and silent; a deletion-only outcome still counts as handled.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAlreadyGone: the target message or member no longer exists.
	// Treated as success.
	ErrAlreadyGone = errors.New("target already gone")
)

func permissionDenied(err error) bool { return errors.Is(err, ErrPermissionDenied) }

func alreadyGone(err error) bool { return errors.Is(err, ErrAlreadyGone) }
