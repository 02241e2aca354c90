package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewHello(t *testing.T) {
	f := NewHello("s1", 30000, "gw", "1.0")
	if f.Op != OpHello || f.V != Version || f.T == 0 {
		t.Fatalf("bad envelope: %+v", f)
	}
	d, ok := f.Data.(HelloData)
	if !ok {
		t.Fatalf("unexpected payload type %T", f.Data)
	}
	if d.SessionID != "s1" || d.HeartbeatMs != 30000 {
		t.Fatalf("bad hello payload: %+v", d)
	}
	if d.Resume.Supported {
		t.Fatalf("resume must be advertised unsupported")
	}
}

func TestNewErrorFatalFlag(t *testing.T) {
	f := NewError(CodeAuthFailed, "nope", true)
	d := f.Data.(ErrorData)
	if d.Code != CodeAuthFailed || !d.Fatal {
		t.Fatalf("bad error payload: %+v", d)
	}
	f = NewError(CodeUnknownOp, "what", false)
	if f.Data.(ErrorData).Fatal {
		t.Fatalf("non-fatal error marked fatal")
	}
}

func TestResultCorrelation(t *testing.T) {
	ok := NewResult("c42", map[string]any{"messageId": "qq:m:1"})
	if d := ok.Data.(ResultData); d.ID != "c42" || !d.Success || d.Error != nil {
		t.Fatalf("bad success result: %+v", d)
	}
	fail := NewResultError("c42", CodeForbidden, "out of scope")
	d := fail.Data.(ResultData)
	if d.ID != "c42" || d.Success || d.Error == nil || d.Error.Code != CodeForbidden {
		t.Fatalf("bad failure result: %+v", d)
	}
}

func TestFrameEnvelopeDecode(t *testing.T) {
	b, err := json.Marshal(NewPong())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Op != OpPong || f.V != Version {
		t.Fatalf("bad envelope: %+v", f)
	}
}
