package datatypes

import "time"

// ClientMessageType enumerates frames a client may send over the
// websocket connection.
type ClientMessageType string

const (
	MsgSubscribe ClientMessageType = "SUBSCRIBE"
	MsgOperation ClientMessageType = "OPERATION"
	MsgSync      ClientMessageType = "SYNC"
	MsgPing      ClientMessageType = "PING"
)

// ServerMessageType enumerates frames the server sends to clients.
type ServerMessageType string

const (
	MsgConnectionEstablished ServerMessageType = "CONNECTION_ESTABLISHED"
	MsgDocumentState         ServerMessageType = "DOCUMENT_STATE"
	MsgOperationApplied      ServerMessageType = "OPERATION_APPLIED"
	MsgSyncResponse          ServerMessageType = "SYNC_RESPONSE"
	MsgPong                  ServerMessageType = "PONG"
	MsgError                 ServerMessageType = "ERROR"
)

// ClientMessage is one inbound websocket frame. DocID and Owner are only
// read for SUBSCRIBE; Command only for OPERATION.
type ClientMessage struct {
	Type    ClientMessageType `json:"type"`
	DocID   string            `json:"docId,omitempty"`
	Owner   string            `json:"owner,omitempty"`
	Command *Command          `json:"command,omitempty"`
}

// ServerMessage is one outbound websocket frame.
//
// OPERATION_APPLIED frames go to every connection sharing the document,
// including the originator, so everyone converges on the server-applied
// truth rather than local optimistic state. ERROR frames go only to the
// connection that issued the failing command.
type ServerMessage struct {
	Type         ServerMessageType `json:"type"`
	ConnectionID string            `json:"connectionId,omitempty"`
	Document     *Document         `json:"document,omitempty"`
	Command      *Command          `json:"command,omitempty"`
	Timestamp    time.Time         `json:"timestamp,omitempty"`
	Message      string            `json:"message,omitempty"`
}
