package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	scheme, rest, err := ParseAddress("grpc://0.0.0.0:50051")
	require.NoError(t, err)
	require.Equal(t, SchemeGRPC, scheme)
	require.Equal(t, "0.0.0.0:50051", rest)

	scheme, rest, err = ParseAddress("http://127.0.0.1:8090")
	require.NoError(t, err)
	require.Equal(t, SchemeHTTP, scheme)
	require.Equal(t, "127.0.0.1:8090", rest)
}

func TestParseAddressDiscoveryNotImplemented(t *testing.T) {
	_, _, err := ParseAddress("openagents://discover.example")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrDiscoveryNotImplemented))
}

func TestParseAddressRejectsUnknownScheme(t *testing.T) {
	_, _, err := ParseAddress("ftp://nope")
	require.Error(t, err)
}
