package channel

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/goevery/liverelay/internal/ierr"
)

// Kind names one of the logical pub/sub streams multiplexed per room.
type Kind string

const (
	KindChat         Kind = "chat"
	KindEmoji        Kind = "emoji"
	KindModuleAction Kind = "module-action"
	KindStreamStatus Kind = "stream-status"
)

var Kinds = []Kind{KindChat, KindEmoji, KindModuleAction, KindStreamStatus}

const EventMessage = "message"

func (k Kind) Valid() bool {
	switch k {
	case KindChat, KindEmoji, KindModuleAction, KindStreamStatus:
		return true
	default:
		return false
	}
}

func (k Kind) TopicPrefix() string {
	return string(k) + ":"
}

// Topic is the subscription target of this kind for roomId.
func (k Kind) Topic(roomId string) string {
	return k.TopicPrefix() + roomId
}

func ParseTopic(topic string) (Kind, string, error) {
	kind, roomId, found := strings.Cut(topic, ":")
	if !found || roomId == "" {
		return "", "", ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid channel"))
	}

	if !Kind(kind).Valid() {
		return "", "", ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("unknown channel kind: "+kind))
	}

	return Kind(kind), roomId, nil
}

// Message is what subscribers of a topic receive.
type Message struct {
	Id         string          `json:"id"`
	CreateTime time.Time       `json:"createTime"`
	Channel    string          `json:"channel"`
	Payload    json.RawMessage `json:"payload"`
}

type ChatMessage struct {
	Id       string    `json:"id,omitempty"`
	Sender   string    `json:"sender"`
	Text     string    `json:"text"`
	SentTime time.Time `json:"sentTime"`
}

type Emoji struct {
	Emoji  string `json:"emoji"`
	Sender string `json:"sender,omitempty"`
}

// ModuleAction carries shared on-screen state changes (slides, polls, video
// position) issued by the broadcaster.
type ModuleAction struct {
	Module string          `json:"module"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type StatusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
