package messages

import (
	"context"
	"fmt"

	"github.com/hendrywilliam/skua/src/rest"
	"github.com/hendrywilliam/skua/src/structs"
)

// Messages API.
// Source: https://discord.com/developers/docs/resources/message
type MessageAPI struct {
	rest *rest.REST
}

func New(rest *rest.REST) *MessageAPI {
	return &MessageAPI{
		rest: rest,
	}
}

func (m *MessageAPI) Create(ctx context.Context, channelID string, data structs.CreateMessage) (*structs.Message, error) {
	body, err := rest.Encode(data)
	if err != nil {
		return nil, err
	}
	res, err := m.rest.Post(ctx, fmt.Sprintf("/channels/%s/messages", channelID), body)
	if err != nil {
		return nil, err
	}
	message := new(structs.Message)
	if err := rest.Decode(res, message); err != nil {
		return nil, err
	}
	return message, nil
}

func (m *MessageAPI) Get(ctx context.Context, channelID string, messageID string) (*structs.Message, error) {
	res, err := m.rest.Get(ctx, fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID))
	if err != nil {
		return nil, err
	}
	message := new(structs.Message)
	if err := rest.Decode(res, message); err != nil {
		return nil, err
	}
	return message, nil
}

func (m *MessageAPI) Delete(ctx context.Context, channelID string, messageID string) error {
	_, err := m.rest.Delete(ctx, fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID))
	return err
}
