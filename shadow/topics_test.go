package shadow_test

import (
	"testing"

	"github.com/relabs-tech/shadowsync/shadow"
)

func TestTopics(t *testing.T) {
	topics := shadow.NewTopics("", "ledpanel")
	cases := map[string]string{
		topics.Get():            "things/ledpanel/shadow/get",
		topics.GetAccepted():    "things/ledpanel/shadow/get/accepted",
		topics.GetRejected():    "things/ledpanel/shadow/get/rejected",
		topics.Update():         "things/ledpanel/shadow/update",
		topics.UpdateAccepted(): "things/ledpanel/shadow/update/accepted",
		topics.UpdateRejected(): "things/ledpanel/shadow/update/rejected",
		topics.UpdateDelta():    "things/ledpanel/shadow/update/delta",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}
}

func TestParseTopic(t *testing.T) {
	thing, operation, ok := shadow.ParseTopic("", "things/ledpanel/shadow/get")
	if !ok || thing != "ledpanel" || operation != "get" {
		t.Fatalf("get topic did not parse: %s %s %v", thing, operation, ok)
	}
	thing, operation, ok = shadow.ParseTopic("", "things/ledpanel/shadow/update")
	if !ok || thing != "ledpanel" || operation != "update" {
		t.Fatalf("update topic did not parse: %s %s %v", thing, operation, ok)
	}

	// response and event topics are outbound only and must not parse
	for _, topic := range []string{
		"things/ledpanel/shadow/get/accepted",
		"things/ledpanel/shadow/update/delta",
		"things/ledpanel/shadow/delete",
		"things/ledpanel/twin",
		"other/ledpanel/shadow/get",
		"things",
	} {
		if _, _, ok := shadow.ParseTopic("", topic); ok {
			t.Errorf("topic %s must not parse", topic)
		}
	}
}

func TestDeviceTopics(t *testing.T) {
	topics := shadow.NewDeviceTopics("", "basicPubSub")
	if topics.ButtonState() != "demo-device/basicPubSub/button_state" {
		t.Fatalf("unexpected button state topic %s", topics.ButtonState())
	}
	if topics.LEDState(shadow.LEDPending) != "demo-device/basicPubSub/led_state/pending" {
		t.Fatalf("unexpected led state topic %s", topics.LEDState(shadow.LEDPending))
	}
}

func TestParseButtonStateTopic(t *testing.T) {
	client, ok := shadow.ParseButtonStateTopic("", "demo-device/basicPubSub/button_state")
	if !ok || client != "basicPubSub" {
		t.Fatalf("button state topic did not parse: %s %v", client, ok)
	}
	for _, topic := range []string{
		"demo-device/basicPubSub/led_state/pending",
		"demo-device/button_state",
		"demo-device/a/b/button_state",
		"other/basicPubSub/button_state",
	} {
		if _, ok := shadow.ParseButtonStateTopic("", topic); ok {
			t.Errorf("topic %s must not parse", topic)
		}
	}
}
