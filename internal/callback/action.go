// Package callback defines the closed set of inline-button payloads the bots understand.
// Payloads are parsed once at the update boundary; everything downstream switches on the
// concrete Action type.
package callback

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/noah-isme/clonebot/internal/models"
)

// maxDataLength is the Bot API limit for callback_data.
const maxDataLength = 64

// ErrUnknownAction is returned for payloads outside the closed set.
var ErrUnknownAction = errors.New("unknown callback action")

// Action is implemented by every callback payload variant.
type Action interface {
	Encode() string
	isAction()
}

// Download redeems a search-result token.
type Download struct{ Token string }

// HowTo shows the download guide.
type HowTo struct{}

// ToggleForceSub flips mandatory subscription from the settings menu.
type ToggleForceSub struct{}

// SetTimer picks a delete timer from the settings menu.
type SetTimer struct{ Value string }

// SetShortener picks a shortener from the settings menu.
type SetShortener struct{ Kind models.ShortenerKind }

func (Download) isAction()       {}
func (HowTo) isAction()          {}
func (ToggleForceSub) isAction() {}
func (SetTimer) isAction()       {}
func (SetShortener) isAction()   {}

// Encode renders the payload as "dl:<token>".
func (a Download) Encode() string {
	return "dl:" + a.Token
}

// Encode renders the payload as "howto".
func (HowTo) Encode() string {
	return "howto"
}

// Encode renders the payload as "fs:toggle".
func (ToggleForceSub) Encode() string {
	return "fs:toggle"
}

// Encode renders the payload as "timer:<value>".
func (a SetTimer) Encode() string {
	return "timer:" + a.Value
}

// Encode renders the payload as "short:<kind>".
func (a SetShortener) Encode() string {
	return "short:" + string(a.Kind)
}

var (
	tokenPattern = regexp.MustCompile(`^[0-9a-f]{16,62}$`)
	timerPattern = regexp.MustCompile(`^\d{1,4}[mhMH]$`)
)

// Parse decodes callback data into an Action.
func Parse(data string) (Action, error) {
	if data == "" || len(data) > maxDataLength {
		return nil, ErrUnknownAction
	}
	tag, value, _ := strings.Cut(data, ":")
	switch tag {
	case "dl":
		if !tokenPattern.MatchString(value) {
			return nil, fmt.Errorf("%w: malformed token", ErrUnknownAction)
		}
		return Download{Token: value}, nil
	case "howto":
		if value != "" {
			break
		}
		return HowTo{}, nil
	case "fs":
		if value == "toggle" {
			return ToggleForceSub{}, nil
		}
	case "timer":
		if timerPattern.MatchString(value) {
			return SetTimer{Value: strings.ToLower(value)}, nil
		}
	case "short":
		if kind, ok := models.ParseShortenerKind(value); ok {
			return SetShortener{Kind: kind}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, data)
}
