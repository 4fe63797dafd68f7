package mqttbridge

import (
	"errors"
	"testing"

	"github.com/busprobridge/core/internal/cover"
	"github.com/busprobridge/core/internal/device"
)

var errNotFound = errors.New("not found")

func TestAddressFromTopic(t *testing.T) {
	cases := []struct {
		topic   string
		want    device.Address
		wantErr bool
	}{
		{"busprobridge/cmd/light/1/2/3", device.Address{Subnet: 1, Device: 2, Channel: 3}, false},
		{"busprobridge/cmd/cover_raw/10/20/4", device.Address{Subnet: 10, Device: 20, Channel: 4}, false},
		{"1/2", device.Address{}, true},
		{"busprobridge/cmd/light/1/2/x", device.Address{}, true},
		{"busprobridge/cmd/light/1/2/256", device.Address{}, true},
	}
	for _, tc := range cases {
		got, err := addressFromTopic(tc.topic)
		if tc.wantErr {
			if err == nil {
				t.Errorf("addressFromTopic(%q) expected error, got %v", tc.topic, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("addressFromTopic(%q) unexpected error: %v", tc.topic, err)
		}
		if got != tc.want {
			t.Errorf("addressFromTopic(%q) = %+v, want %+v", tc.topic, got, tc.want)
		}
	}
}

func TestGroupIDFromTopic(t *testing.T) {
	got := groupIDFromTopic("busprobridge/cmd/cover_group/living_room")
	if got != "living_room" {
		t.Errorf("groupIDFromTopic() = %q, want %q", got, "living_room")
	}
}

func TestCoverCommandFromPayload(t *testing.T) {
	cases := []struct {
		payload string
		want    cover.Command
		ok      bool
	}{
		{"OPEN", cover.CommandOpen, true},
		{"open", cover.CommandOpen, true},
		{" CLOSE ", cover.CommandClose, true},
		{"STOP", cover.CommandStop, true},
		{"TOGGLE", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := coverCommandFromPayload([]byte(tc.payload))
		if ok != tc.ok {
			t.Errorf("coverCommandFromPayload(%q) ok = %v, want %v", tc.payload, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("coverCommandFromPayload(%q) = %v, want %v", tc.payload, got, tc.want)
		}
	}
}

func TestFanOutGroupCommandUnknownGroup(t *testing.T) {
	b := &Bridge{registry: fakeRegistry{}}
	err := b.fanOutGroupCommand("missing", cover.CommandOpen, 0)
	if err == nil {
		t.Fatal("fanOutGroupCommand() expected error for unknown group")
	}
}

type fakeRegistry struct{}

func (fakeRegistry) ListLights() []device.Light           { return nil }
func (fakeRegistry) ListCovers() []device.Cover           { return nil }
func (fakeRegistry) ListCoverGroups() []device.CoverGroup { return nil }
func (fakeRegistry) ListDryContacts() []device.DryContact { return nil }
func (fakeRegistry) ListSensors(device.Kind) []device.Sensor {
	return nil
}
func (fakeRegistry) GetCover(addr device.Address) (device.Cover, error) {
	return device.Cover{}, errNotFound
}
func (fakeRegistry) GetCoverGroup(id string) (device.CoverGroup, error) {
	return device.CoverGroup{}, errNotFound
}
