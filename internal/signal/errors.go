package signal

import "errors"

// ErrTransportLost reports that the coordinator link is down. Every live peer
// session must be torn down when this surfaces: no negotiation survives a
// lost signaling path.
var ErrTransportLost = errors.New("signaling transport lost")
