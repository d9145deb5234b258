package embedding

import "errors"

var (
	ErrUnknownModel  = errors.New("unknown embedding model")
	ErrCountMismatch = errors.New("embedding count does not match input count")
)
