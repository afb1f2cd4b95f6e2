package structs

type InteractionType = uint8

const (
	InteractionTypePing               InteractionType = 1
	InteractionTypeApplicationCommand InteractionType = 2
	InteractionTypeMessageComponent   InteractionType = 3
	InteractionTypeModalSubmit        InteractionType = 5
)

type InteractionApplicationCommandData struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Type     uint        `json:"type"`
	Options  interface{} `json:"options,omitempty"`
	GuildID  string      `json:"guild_id,omitempty"`
	TargetID string      `json:"target_id,omitempty"`
}

type Interaction struct {
	ID            string                            `json:"id"`
	ApplicationID string                            `json:"application_id"`
	Type          InteractionType                   `json:"type"`
	Data          InteractionApplicationCommandData `json:"data,omitempty"`
	GuildID       string                            `json:"guild_id,omitempty"`
	ChannelID     string                            `json:"channel_id,omitempty"`
	Member        Member                            `json:"member,omitempty"`
	User          User                              `json:"user,omitempty"`
	Token         string                            `json:"token"`
	Version       uint                              `json:"version"`
	Locale        string                            `json:"locale,omitempty"`
}

type InteractionResponseType = uint

const (
	InteractionResponseTypePong                             InteractionResponseType = 1
	InteractionResponseTypeChannelMessageWithSource         InteractionResponseType = 4
	InteractionResponseTypeDeferredChannelMessageWithSource InteractionResponseType = 5
)

type InteractionResponseDataMessage struct {
	Tts     bool   `json:"tts,omitempty"`
	Content string `json:"content,omitempty"`
	Flags   uint   `json:"flags,omitempty"`
}

type InteractionResponse struct {
	Type InteractionResponseType        `json:"type"`
	Data InteractionResponseDataMessage `json:"data,omitempty"`
}
