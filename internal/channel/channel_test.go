package channel

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestChannel(token string) *Channel {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(token, nil, nil, nil, nil, log)
}

func TestDispatchRejectsMalformedFrame(t *testing.T) {
	c := newTestChannel("secret")
	reply := c.dispatch(nil, "not-enough-parts")
	if !strings.Contains(reply, "BadFrame") {
		t.Errorf("dispatch(malformed) = %q, want it to contain BadFrame", reply)
	}
}

func TestDispatchRejectsWrongToken(t *testing.T) {
	c := newTestChannel("secret")
	reply := c.dispatch(nil, "wrong:CREATE:{}")
	if !strings.Contains(reply, "AuthRejected") {
		t.Errorf("dispatch(wrong token) = %q, want it to contain AuthRejected", reply)
	}
}

func TestDispatchRejectsBadPayload(t *testing.T) {
	c := newTestChannel("secret")
	reply := c.dispatch(nil, "secret:CREATE:not-json")
	if !strings.Contains(reply, "BadPayload") {
		t.Errorf("dispatch(bad payload) = %q, want it to contain BadPayload", reply)
	}
}

func TestDispatchRejectsUnknownVerb(t *testing.T) {
	c := newTestChannel("secret")
	reply := c.dispatch(nil, "secret:FROBNICATE:{}")
	if !strings.Contains(reply, "BadFrame") {
		t.Errorf("dispatch(unknown verb) = %q, want it to contain BadFrame", reply)
	}
}

func TestDispatchRejectsBadDeletePayload(t *testing.T) {
	c := newTestChannel("secret")
	reply := c.dispatch(nil, `secret:DELETE:not-json`)
	if !strings.Contains(reply, "BadPayload") {
		t.Errorf("dispatch(bad delete payload) = %q, want it to contain BadPayload", reply)
	}
}

func TestDispatchRejectsBadDeleteGlobalPayload(t *testing.T) {
	c := newTestChannel("secret")
	// spec.md §6: DELETE_GLOBAL carries {users:[{user, uuid?}, …]}, a list of
	// objects — not a flat array of login strings, which must fail to parse.
	reply := c.dispatch(nil, `secret:DELETE_GLOBAL:["alice","bob"]`)
	if !strings.Contains(reply, "BadPayload") {
		t.Errorf("dispatch(delete_global legacy shape) = %q, want it to contain BadPayload", reply)
	}
}
