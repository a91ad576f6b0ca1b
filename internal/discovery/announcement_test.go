package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
)

func TestEncodeAnnouncement(t *testing.T) {
	data := EncodeAnnouncement(models.ControllerAddress{Host: "10.0.0.5", Port: 5000})
	assert.Equal(t, "SERVER_IP:10.0.0.5:5000", string(data))
}

func TestAnnouncementRoundTrip(t *testing.T) {
	for _, addr := range []models.ControllerAddress{
		{Host: "10.0.0.5", Port: 5000},
		{Host: "192.168.1.254", Port: 1},
		{Host: "127.0.0.1", Port: 65535},
	} {
		decoded, err := DecodeAnnouncement(EncodeAnnouncement(addr))
		require.NoError(t, err, addr.String())
		assert.Equal(t, addr, decoded)
	}
}

func TestDecodeAnnouncementTrimsWhitespace(t *testing.T) {
	addr, err := DecodeAnnouncement([]byte("SERVER_IP:10.0.0.5:5000\n"))
	require.NoError(t, err)
	assert.Equal(t, models.ControllerAddress{Host: "10.0.0.5", Port: 5000}, addr)
}

func TestDecodeAnnouncementRejectsMalformed(t *testing.T) {
	for _, message := range []string{
		"",
		"hello",
		"SERVER_IP:10.0.0.5",
		"SERVER_IP:10.0.0.5:5000:extra",
		"CLIENT_IP:10.0.0.5:5000",
		"SERVER_IP::5000",
		"SERVER_IP:10.0.0.5:port",
		"SERVER_IP:10.0.0.5:0",
		"SERVER_IP:10.0.0.5:70000",
		"SERVER_IP:10.0 .0.5:5000",
		"SERVER_IP:controller.lan:5000",
		"SERVER_IP:10.0.0.256:5000",
	} {
		_, err := DecodeAnnouncement([]byte(message))
		assert.ErrorIs(t, err, models.ErrValidation, message)
	}
}
