// Package interaction runs the request/response exchange with one LED
// controller.
//
// The protocol has no sequence numbers: a response belongs to whichever
// command is outstanding. Client therefore allows exactly one command in
// flight per peripheral. Do blocks until the response arrives, the command
// times out, or the link drops; every failure is a *fault.Fault.
//
//	client := interaction.NewClient(tr, interaction.Config{DeviceID: id})
//	resp, err := client.Do(ctx, wire.EnterConfig{})
//
// A response that arrives with nothing outstanding (for example the late
// answer to a timed-out command) is logged and handed to the unsolicited
// handler, never to the next command.
package interaction
