package pusherr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"configuration", Configuration.New("missing private_key"), KindConfiguration},
		{"credential exchange", CredentialExchange.Wrap(errors.New("401")), KindCredentialExchange},
		{"no tokens", NoTokens.New("No device tokens found"), KindNoTokens},
		{"device delivery", DeviceDelivery.New("UNREGISTERED"), KindDeviceDelivery},
		{"storage wrapped by fmt", fmt.Errorf("claim: %w", Storage.Wrap(errors.New("conn reset"))), KindStorage},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestKind_Fatal(t *testing.T) {
	assert.True(t, KindConfiguration.Fatal())
	assert.True(t, KindCredentialExchange.Fatal())
	assert.False(t, KindNoTokens.Fatal())
	assert.False(t, KindDeviceDelivery.Fatal())
	assert.False(t, KindStorage.Fatal())
	assert.False(t, KindUnknown.Fatal())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "credential_exchange", KindCredentialExchange.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
