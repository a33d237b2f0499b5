package callback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clonebot/internal/models"
)

func TestParseRoundTrip(t *testing.T) {
	actions := []Action{
		Download{Token: "0123456789abcdef0123456789abcdef"},
		HowTo{},
		ToggleForceSub{},
		SetTimer{Value: "10m"},
		SetShortener{Kind: models.ShortenerTinyURL},
	}
	for _, action := range actions {
		parsed, err := Parse(action.Encode())
		require.NoError(t, err, action.Encode())
		assert.Equal(t, action, parsed)
	}
}

func TestParseNormalisesValues(t *testing.T) {
	parsed, err := Parse("timer:2H")
	require.NoError(t, err)
	assert.Equal(t, SetTimer{Value: "2h"}, parsed)

	parsed, err = Parse("short:gplinks")
	require.NoError(t, err)
	assert.Equal(t, SetShortener{Kind: models.ShortenerGPLinks}, parsed)
}

func TestParseRejectsUnknownPayloads(t *testing.T) {
	for _, data := range []string{
		"",
		"get_file_12",
		"dl:",
		"dl:NOT-HEX",
		"fs:on",
		"timer:soon",
		"short:bitly",
		"howto:extra",
		"dl:" + strings.Repeat("a", 70),
	} {
		_, err := Parse(data)
		assert.ErrorIs(t, err, ErrUnknownAction, data)
	}
}
