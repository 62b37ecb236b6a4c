package wire

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
)

func TestEncodeThenScanRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	want := Request{Command: "start", Job: "web"}
	if err := Encode(&buf, want); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var got Request
	s := NewScanner(&buf)
	if err := s.Next(&got); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestScannerReadsMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	_ = Encode(&buf, Request{Command: "start", Job: "a"})
	_ = Encode(&buf, Request{Command: "stop", Job: "b"})

	s := NewScanner(&buf)

	var first, second Request
	if err := s.Next(&first); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if err := s.Next(&second); err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if first.Command != "start" || second.Command != "stop" {
		t.Errorf("got %+v, %+v", first, second)
	}
}

func TestScannerReturnsEOFOnClose(t *testing.T) {
	s := NewScanner(bytes.NewReader(nil))
	var req Request
	if err := s.Next(&req); err != io.EOF {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestResponseOmitsPayloadAndErrorWhenUnset(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, Response{OK: true}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := raw["payload"]; ok {
		t.Error("payload present, want omitted")
	}
	if _, ok := raw["error"]; ok {
		t.Error("error present, want omitted")
	}
}
