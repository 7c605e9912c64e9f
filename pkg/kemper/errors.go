package kemper

import "errors"

var (
	ErrInvalidKeyType   = errors.New("kemper: invalid key type")
	ErrInvalidValueType = errors.New("kemper: invalid value type")
	ErrInvalidEncoding  = errors.New("kemper: invalid encoding")
	ErrUnknownParameter = errors.New("kemper: unknown parameter")
)
