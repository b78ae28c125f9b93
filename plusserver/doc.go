// Package plusserver is a client for the Plusserver SMS gateway.
//
// It sends messages, queries their delivery state and waits for delivery:
//
//	plusserver.Configure(plusserver.SetCredentials("user", "secret"))
//
//	outcome, err := plusserver.SendSMS(ctx, "+4917612345678", "Hello")
//	if err != nil {
//		return err
//	}
//	state, err := plusserver.WaitUntilArrived(ctx, outcome.HandleID,
//		plusserver.WithDeadline(2*time.Minute))
//
// Every call resolves its parameters from per-call options, then the Config
// (the process-wide one, or one passed with WithConfig), then library
// defaults. Errors are *Error values of four kinds; communication and request
// errors can be turned into a none result with WithFailSilently(true).
package plusserver
