package gateway

import (
	"encoding/json"

	"github.com/hendrywilliam/skua/src/structs"
)

// https://discord.com/developers/docs/events/gateway#message-content-intent
type GatewayIntent = int

var (
	GuildsIntent                      = 1 << 0
	GuildMembersIntent                = 1 << 1
	GuildModerationIntent             = 1 << 2
	GuildExpressionIntent             = 1 << 3
	GuildIntegrationsIntent           = 1 << 4
	GuildWebhooksIntent               = 1 << 5
	GuildInvitesIntent                = 1 << 6
	GuildVoiceStatesIntent            = 1 << 7
	GuildPresencesIntent              = 1 << 8
	GuildMessagesIntent               = 1 << 9
	GuildMessageReactionIntent        = 1 << 10
	GuildMessageTypingIntent          = 1 << 11
	DirectMessageIntent               = 1 << 12
	DirectMessageReactionIntent       = 1 << 13
	DirectMessageTypingIntent         = 1 << 14
	MessageContentIntent              = 1 << 15
	GuildScheduledEventsIntent        = 1 << 16
	AutoModerationConfigurationIntent = 1 << 20
	AutoModerationExecutionIntent     = 1 << 21
	GuildMessagePollsIntent           = 1 << 24
	DirectMessagePollsIntent          = 1 << 25
)

type GatewayOpcode = int

const (
	OpcodeDispatch           GatewayOpcode = 0
	OpcodeHeartbeat          GatewayOpcode = 1
	OpcodeIdentify           GatewayOpcode = 2
	OpcodePresenceUpdate     GatewayOpcode = 3
	OpcodeResume             GatewayOpcode = 6
	OpcodeReconnect          GatewayOpcode = 7
	OpcodeRequestGuildMember GatewayOpcode = 8
	OpcodeInvalidSession     GatewayOpcode = 9
	OpcodeHello              GatewayOpcode = 10
	OpcodeHeartbeatAck       GatewayOpcode = 11
)

type GatewayCloseEventCode = int

const (
	UnknownError         GatewayCloseEventCode = 4000
	UnknownOpcode        GatewayCloseEventCode = 4001
	DecodeError          GatewayCloseEventCode = 4002
	NotAuthenticated     GatewayCloseEventCode = 4003
	AuthenticationFailed GatewayCloseEventCode = 4004
	AlreadyAuthenticated GatewayCloseEventCode = 4005
	InvalidSeq           GatewayCloseEventCode = 4007
	RateLimited          GatewayCloseEventCode = 4008
	SessionTimedOut      GatewayCloseEventCode = 4009
	InvalidShard         GatewayCloseEventCode = 4010
	ShardingRequired     GatewayCloseEventCode = 4011
	InvalidAPIVersion    GatewayCloseEventCode = 4012
	InvalidIntents       GatewayCloseEventCode = 4013
	DisallowedIntents    GatewayCloseEventCode = 4014
)

type EventName = string

const (
	EventNameReady   EventName = "READY"
	EventNameResumed EventName = "RESUMED"
)

// RawEvent is an inbound gateway frame. D stays opaque until the opcode
// (and event name, for dispatch frames) picks a payload type.
type RawEvent struct {
	Op GatewayOpcode   `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  uint64          `json:"s,omitempty"`
	T  EventName       `json:"t,omitempty"`
}

type Event struct {
	Op GatewayOpcode `json:"op"`
	D  interface{}   `json:"d"`
}

type HelloEventData struct {
	HeartbeatInterval uint64 `json:"heartbeat_interval"`
}

type IdentifyEventProperties struct {
	Os      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type IdentifyEventData struct {
	Token      string                  `json:"token"`
	Intents    int                     `json:"intents"`
	Properties IdentifyEventProperties `json:"properties"`
	Compress   bool                    `json:"compress"`
}

type ResumeEventData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`
}

type ReadyEventData struct {
	SessionID        string              `json:"session_id"`
	ResumeGatewayURL string              `json:"resume_gateway_url"`
	User             structs.User        `json:"user"`
	Application      structs.Application `json:"application"`
}

type PresenceUpdateData struct {
	Since      int64         `json:"since"`
	Activities []interface{} `json:"activities"`
	Status     string        `json:"status"`
	AFK        bool          `json:"afk"`
}
