package application

import "errors"

// ErrNilStore is returned by operations invoked on a nil BookingStore.
var ErrNilStore = errors.New("application: booking store is nil")
