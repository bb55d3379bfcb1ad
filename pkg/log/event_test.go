package log

import "testing"

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DirectionIn", DirectionIn.String(), "IN"},
		{"DirectionOut", DirectionOut.String(), "OUT"},
		{"DirectionUnknown", Direction(9).String(), "UNKNOWN"},
		{"LayerTransport", LayerTransport.String(), "TRANSPORT"},
		{"LayerWire", LayerWire.String(), "WIRE"},
		{"LayerService", LayerService.String(), "SERVICE"},
		{"LayerUnknown", Layer(9).String(), "UNKNOWN"},
		{"CategoryMessage", CategoryMessage.String(), "MESSAGE"},
		{"CategoryState", CategoryState.String(), "STATE"},
		{"CategoryError", CategoryError.String(), "ERROR"},
		{"CategoryUnknown", Category(9).String(), "UNKNOWN"},
		{"MessageCommand", MessageTypeCommand.String(), "COMMAND"},
		{"MessageResponse", MessageTypeResponse.String(), "RESPONSE"},
		{"MessageUnsolicited", MessageTypeUnsolicited.String(), "UNSOLICITED"},
		{"EntityConnection", StateEntityConnection.String(), "CONNECTION"},
		{"EntitySession", StateEntitySession.String(), "SESSION"},
		{"EntityOwnership", StateEntityOwnership.String(), "OWNERSHIP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParseNames(t *testing.T) {
	d, err := ParseDirection("Out")
	if err != nil || d != DirectionOut {
		t.Errorf("ParseDirection(Out) = %v, %v", d, err)
	}
	l, err := ParseLayer("wire")
	if err != nil || l != LayerWire {
		t.Errorf("ParseLayer(wire) = %v, %v", l, err)
	}
	c, err := ParseCategory("ERROR")
	if err != nil || c != CategoryError {
		t.Errorf("ParseCategory(ERROR) = %v, %v", c, err)
	}

	_, err = ParseLayer("radio")
	if err == nil || err.Error() != "invalid layer: radio (one of service, transport, wire)" {
		t.Errorf("ParseLayer(radio) error = %v", err)
	}
}
