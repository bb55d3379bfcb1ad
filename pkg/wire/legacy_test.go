package wire

import (
	"errors"
	"testing"
)

func TestDecodeLegacy(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantCode ErrorCode
		wantMsg  string
		success  bool
	}{
		{name: "success", line: "SUCCESS:config saved", wantMsg: "config saved", success: true},
		{name: "success empty", line: "SUCCESS:", success: true},
		{name: "success crlf", line: "SUCCESS:ok\r\n", wantMsg: "ok", success: true},
		{name: "not in config mode", line: "ERROR:4:Not in config mode", wantCode: ErrorNotInConfigMode, wantMsg: "Not in config mode"},
		{name: "not owner", line: "ERROR:8:", wantCode: ErrorNotOwner},
		{name: "message with colon", line: "ERROR:6:flash: sector 3", wantCode: ErrorFlashWriteFailed, wantMsg: "flash: sector 3"},
		{name: "unknown code", line: "ERROR:16:settings corrupt", wantCode: ErrorUnknown, wantMsg: "settings corrupt"},
		{name: "code above a byte", line: "ERROR:300:boom", wantCode: ErrorUnknown, wantMsg: "boom"},
		{name: "code wrapping to known", line: "ERROR:260:wraps", wantCode: ErrorUnknown, wantMsg: "wraps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeLegacy(tt.line)
			if err != nil {
				t.Fatalf("DecodeLegacy(%q): %v", tt.line, err)
			}
			if tt.success {
				ack, ok := resp.(AckSuccess)
				if !ok {
					t.Fatalf("resp = %T, want AckSuccess", resp)
				}
				if ack.Message != tt.wantMsg {
					t.Errorf("message = %q, want %q", ack.Message, tt.wantMsg)
				}
				return
			}
			ack, ok := resp.(AckError)
			if !ok {
				t.Fatalf("resp = %T, want AckError", resp)
			}
			if ack.Envelope.Code != tt.wantCode || ack.Envelope.Message != tt.wantMsg {
				t.Errorf("envelope = %+v, want code %s msg %q", ack.Envelope, tt.wantCode, tt.wantMsg)
			}
		})
	}
}

func TestDecodeLegacyMalformed(t *testing.T) {
	lines := []string{"ERROR:", "ERROR:x:bad", "ERROR:4", "ERROR:-1:negative", "ERROR:99999999999:overflow"}
	for _, line := range lines {
		_, err := DecodeLegacy(line)
		if !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("DecodeLegacy(%q) err = %v, want ErrMalformedFrame", line, err)
		}
	}

	if _, err := DecodeLegacy("HELLO"); !errors.Is(err, ErrUnknownFrame) {
		t.Errorf("DecodeLegacy(HELLO) err = %v, want ErrUnknownFrame", err)
	}
}

func TestDecodeRoutesLegacyFrames(t *testing.T) {
	resp, err := Decode([]byte("ERROR:5:already"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if code := resp.(AckError).Envelope.Code; code != ErrorAlreadyInConfigMode {
		t.Errorf("code = %s, want ALREADY_IN_CONFIG_MODE", code)
	}

	resp, err = Decode([]byte("ERROR:300:boom"))
	if err != nil {
		t.Fatalf("Decode(ERROR:300): %v", err)
	}
	if code := resp.(AckError).Envelope.Code; code != ErrorUnknown {
		t.Errorf("code = %s, want UNKNOWN", code)
	}

	resp, err = Decode([]byte("SUCCESS:"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := resp.(AckSuccess); !ok {
		t.Errorf("resp = %T, want AckSuccess", resp)
	}
}

func TestEncodeLegacy(t *testing.T) {
	line := EncodeLegacy(AckError{Envelope: ErrorEnvelope{Code: ErrorNotInConfigMode, Message: "enter first"}})
	if line != "ERROR:4:enter first" {
		t.Errorf("EncodeLegacy = %q", line)
	}

	resp, err := DecodeLegacy(line)
	if err != nil {
		t.Fatalf("DecodeLegacy: %v", err)
	}
	if resp.(AckError).Envelope.Code != ErrorNotInConfigMode {
		t.Errorf("round trip lost code")
	}

	if got := EncodeLegacy(AckSuccess{Message: "ok"}); got != "SUCCESS:ok" {
		t.Errorf("EncodeLegacy success = %q", got)
	}
	if got := EncodeLegacy(&AnalyticsBatch{}); got != "" {
		t.Errorf("EncodeLegacy batch = %q, want empty", got)
	}
}
