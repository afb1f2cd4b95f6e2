package interactions

import (
	"context"
	"fmt"
	"net/url"

	"github.com/hendrywilliam/skua/src/rest"
	"github.com/hendrywilliam/skua/src/structs"
)

// Interaction API.
// Provide methods to respond to "Interaction" events.
// Source: https://discord.com/developers/docs/interactions/receiving-and-responding
type InteractionAPI struct {
	rest *rest.REST
}

func NewInteractionAPI(rest *rest.REST) *InteractionAPI {
	return &InteractionAPI{rest: rest}
}

type CreateInteractionResponse struct {
	InteractionResponse *structs.InteractionResponse
	WithResponse        bool
}

func (i *InteractionAPI) Reply(ctx context.Context, interactionID string, interactionToken string, options CreateInteractionResponse) error {
	path := fmt.Sprintf("/interactions/%s/%s/callback", interactionID, interactionToken)
	if options.WithResponse {
		q := url.Values{}
		q.Add("with_response", "true")
		path += "?" + q.Encode()
	}
	body, err := rest.Encode(options.InteractionResponse)
	if err != nil {
		return err
	}
	_, err = i.rest.Post(ctx, path, body)
	return err
}

func (i *InteractionAPI) GetOriginal(ctx context.Context, applicationID string, interactionToken string) (*structs.Message, error) {
	res, err := i.rest.Get(ctx, fmt.Sprintf("/webhooks/%s/%s/messages/@original", applicationID, interactionToken))
	if err != nil {
		return nil, err
	}
	message := new(structs.Message)
	if err := rest.Decode(res, message); err != nil {
		return nil, err
	}
	return message, nil
}

func (i *InteractionAPI) DeleteOriginal(ctx context.Context, applicationID string, interactionToken string) error {
	_, err := i.rest.Delete(ctx, fmt.Sprintf("/webhooks/%s/%s/messages/@original", applicationID, interactionToken))
	return err
}
