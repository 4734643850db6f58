// Package fault defines the error taxonomy shared by the codec, pairing,
// provider and control packages.
//
// Every typed error unwraps to one sentinel, so callers branch with
// errors.Is and reach for errors.As only when they need the details:
//
//	var pe *fault.ProviderError
//	switch {
//	case errors.As(err, &pe):
//	    log.Warn("provider rejected", "code", pe.Code, "message", pe.Message)
//	case errors.Is(err, fault.ErrValidation):
//	    // bad command value, never reached the provider
//	}
package fault
