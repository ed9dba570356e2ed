package resolver

import "errors"

// ErrNeedsExplicitCommand is returned when the offline resolver will not
// guess: destructive intents must be spelled out as an explicit command so
// the classifier sees exactly what would run.
var ErrNeedsExplicitCommand = errors.New("intent requires an explicit command; pass the command text directly")
