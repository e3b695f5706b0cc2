package aio

import (
	"fmt"
)

var (
	// A sub-read was cut short by a signal. Purely a retry signal: the exact-read
	// loops absorb it and never surface it to callers.
	ErrorInterrupted = fmt.Errorf("Aio: interrupted, retry")
)
