// Package control defines the in-band control prefixes and the
// $CMD$/$MSG$ user-command framing shared by the server and the client,
// so both sides parse and build frames the same way.
package control

import "strings"

const (
	PrefixCltHello   = "$CLTHELLO$"
	PrefixCltConn    = "$CLTCONN$"
	PrefixCltDisconn = "$CLTDISCONN$"
	PrefixChName     = "$CHNAME$"
	PrefixChGroup    = "$CHGROUP$"
	PrefixGetClt     = "$GETCLT$"
	PrefixKeepAlive  = "$KEEPALIVE$"
	PrefixKeepAck    = "$KEEPACK$"
	PrefixDisconn    = "$DISCONN$"
	PrefixUsrClose   = "$USRCLOSE$"
	PrefixCmd        = "$CMD$"
	PrefixMsg        = "$MSG$"

	NoExistTraceback = `{"traceback":"$NOEXIST$"}`
)

// ClientData is the JSON shape exchanged for handshake, join/leave
// broadcasts, and $GETCLT$ replies. Reserved control traffic is always
// plain JSON, never the typecast container format.
type ClientData struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Group   string `json:"group"`
}

// ParseCommandFrame splits a "$CMD$<command>$MSG$<content>" payload into
// (command, content). command is an opaque string not containing $MSG$.
func ParseCommandFrame(payload string) (command, content string, ok bool) {
	if !strings.HasPrefix(payload, PrefixCmd) {
		return "", "", false
	}
	rest := strings.TrimPrefix(payload, PrefixCmd)
	idx := strings.Index(rest, PrefixMsg)
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+len(PrefixMsg):], true
}

// BuildCommandFrame is ParseCommandFrame's inverse.
func BuildCommandFrame(command, content string) string {
	return PrefixCmd + command + PrefixMsg + content
}
