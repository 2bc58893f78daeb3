package checkout

import "errors"

// Sentinel kinds for checkout errors.
var (
	ErrCheckoutDisabled = errors.New("checkout disabled: no payees or zero total")
	ErrMalformedURL     = errors.New("malformed checkout url")
)
