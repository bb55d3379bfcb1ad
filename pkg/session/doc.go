// Package session manages the configuration mode of one connected LED
// controller.
//
// A Session moves through Inactive, Entering, Active, Committing and
// Exiting. Parameter and colour writes are validated locally, including a
// power budget check, then debounced per key so that a slider drag sends
// only its final value. When a debounced write fires outside config mode
// the session enters first; if the controller answers not_in_config_mode
// the session re-enters exactly once and resends.
//
//	s := session.New(client, session.Config{DeviceID: id, OnError: report})
//	_ = s.UpdateParameter(wire.ParamBrightness, 180)
//	_ = s.UpdateColor(200, 255, 255)
//	err := s.Commit(ctx)
//
// Link loss discards pending writes unsent and returns the session to
// Inactive.
package session
