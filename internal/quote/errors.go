package quote

import "errors"

// ErrNotFound indicates the upstream response carried no price for the
// requested symbol.
var ErrNotFound = errors.New("quote: symbol not found")
