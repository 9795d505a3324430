package wireproto

import "testing"

func TestEncodeParseRoundTrip(t *testing.T) {
	orig := &FileChanged{
		Type:     TypeFileChanged,
		RiftID:   "rift-1",
		Path:     "main.go",
		Content:  []byte("package main"),
		ClientTS: 1700000000,
	}
	data, err := Encode(orig)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	typ, frame, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if typ != TypeFileChanged {
		t.Fatalf("expected type %q, got %q", TypeFileChanged, typ)
	}
	got, ok := frame.(*FileChanged)
	if !ok {
		t.Fatalf("expected *FileChanged, got %T", frame)
	}
	if got.Path != orig.Path || string(got.Content) != string(orig.Content) {
		t.Fatalf("round-trip mismatch: got %+v", got)
	}
}

func TestParseUnknownType(t *testing.T) {
	_, _, err := Parse([]byte(`{"type":"NotARealFrame"}`))
	if err == nil {
		t.Fatal("expected an error for an unrecognized frame type")
	}
}

func TestParseMalformedJSON(t *testing.T) {
	_, _, err := Parse([]byte(`not json`))
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestParseUserPresenceSharedByJoinAndLeft(t *testing.T) {
	data, _ := Encode(&UserPresence{Type: TypeUserJoined, RiftID: "rift-1", UserID: "u1"})
	typ, frame, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if typ != TypeUserJoined {
		t.Fatalf("expected UserJoined, got %q", typ)
	}
	if _, ok := frame.(*UserPresence); !ok {
		t.Fatalf("expected *UserPresence, got %T", frame)
	}
}
