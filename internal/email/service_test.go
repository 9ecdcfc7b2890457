package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPasswordResetTemplate(t *testing.T) {
	link := "https://shop.example.com/password/reset/abc123"

	body, err := renderPasswordResetTemplate(link)
	require.NoError(t, err)

	assert.Contains(t, body, link)
	assert.Contains(t, body, "Password Recovery")
	assert.Contains(t, body, "please ignore it")
}
