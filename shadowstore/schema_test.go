package shadowstore_test

import (
	"testing"

	"github.com/relabs-tech/shadowsync/shadowstore"
)

func TestValidateUpdate(t *testing.T) {
	valid := []string{
		`{"state":{"desired":{"Red":1}}}`,
		`{"state":{"reported":{"Red":0,"Green":1,"Blue":0}}}`,
		`{"state":{"desired":{"Red":1},"reported":{"Red":1}},"clientToken":"abc"}`,
		`{"state":{"desired":{}}}`,
	}
	for _, payload := range valid {
		if err := shadowstore.ValidateUpdate([]byte(payload)); err != nil {
			t.Errorf("%s expected to be valid, got: %v", payload, err)
		}
	}

	invalid := []string{
		`{}`,
		`{"state":{}}`,
		`{"state":{"desired":{"Red":"on"}}}`,
		`{"state":{"wanted":{"Red":1}}}`,
		`{"state":{"desired":{"Red":1}},"version":3}`,
		`{"state":{"desired":{"Red":1}},"clientToken":42}`,
		`not json at all`,
	}
	for _, payload := range invalid {
		if err := shadowstore.ValidateUpdate([]byte(payload)); err == nil {
			t.Errorf("%s expected to be rejected", payload)
		}
	}
}
