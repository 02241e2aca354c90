package auth

import "testing"

func TestSecretVerifier(t *testing.T) {
	v := NewSecretVerifier("hunter2", []int{1, 2})
	res := v.Authenticate("hunter2")
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if len(res.Instances) != 2 {
		t.Fatalf("expected granted scope, got %v", res.Instances)
	}
	res = v.Authenticate("wrong")
	if res.Success || res.Err == "" {
		t.Fatalf("expected failure with message: %+v", res)
	}
}

func TestOpenModeGrantsDefaultScope(t *testing.T) {
	v := NewSecretVerifier("", nil)
	res := v.Authenticate("anything")
	if !res.Success {
		t.Fatalf("open mode must accept any token: %+v", res)
	}
	if len(res.Instances) != 1 || res.Instances[0] != 0 {
		t.Fatalf("open mode should grant instance 0, got %v", res.Instances)
	}
}

func TestScopeIsCopied(t *testing.T) {
	v := NewSecretVerifier("", []int{3})
	a := v.Authenticate("")
	a.Instances[0] = 99
	b := v.Authenticate("")
	if b.Instances[0] != 3 {
		t.Fatalf("verifier scope mutated by caller")
	}
}
