// internal/auth/ticket_test.go
package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandoffTicketRoundTrip(t *testing.T) {
	require.NoError(t, Init())

	ticket, err := CreateHandoffTicket("sid-abc", "shard-7")
	require.NoError(t, err)

	sid, err := VerifyHandoffTicket(ticket)
	require.NoError(t, err)
	assert.Equal(t, "sid-abc", sid)
}

func TestHandoffTicketTamperRejected(t *testing.T) {
	require.NoError(t, Init())

	ticket, err := CreateHandoffTicket("sid-abc", "shard-7")
	require.NoError(t, err)

	parts := strings.Split(ticket, ".")
	require.Len(t, parts, 3)
	forged := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	_, err = VerifyHandoffTicket(forged)
	assert.Error(t, err)

	_, err = VerifyHandoffTicket("not-a-ticket")
	assert.Error(t, err)
}

func TestHandoffTicketFromRotatedKeyRejected(t *testing.T) {
	require.NoError(t, Init())
	ticket, err := CreateHandoffTicket("sid-abc", "shard-7")
	require.NoError(t, err)

	// A key rotation invalidates every outstanding ticket.
	require.NoError(t, Init())
	_, err = VerifyHandoffTicket(ticket)
	assert.Error(t, err)
}
