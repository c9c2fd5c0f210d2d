package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type callCreator interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// VoiceNotifier places outbound voice calls through Twilio. The message body
// is the TwiML script to play.
type VoiceNotifier struct {
	calls callCreator
	from  string
}

// NewVoiceNotifier builds a Twilio backed voice notifier.
func NewVoiceNotifier(accountSID, authToken, from string) *VoiceNotifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &VoiceNotifier{calls: client.Api, from: from}
}

// Send places the call and waits for Twilio to accept it.
func (n *VoiceNotifier) Send(ctx context.Context, message Message) error {
	if message.Destination == "" {
		return errors.New("call destination is required")
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(message.Destination)
	params.SetFrom(n.from)
	params.SetTwiml(message.Body)

	done := make(chan error, 1)
	go func() {
		_, err := n.calls.CreateCall(params)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("create call: %w", err)
		}
		return nil
	}
}
