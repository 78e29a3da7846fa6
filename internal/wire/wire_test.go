package wire

import (
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, pkt Packet, version uint8) Packet {
	t.Helper()
	buf := GetBuffer(256)
	defer buf.Release()
	if err := Encode(buf, pkt, version); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, n, err := Decode(buf.Bytes(), version)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(buf.Bytes()) {
		t.Fatalf("decode consumed %d of %d bytes", n, len(buf.Bytes()))
	}
	return got
}

func TestRoundTripConnect(t *testing.T) {
	pkt := &Connect{
		Version:    Version5,
		CleanStart: true,
		KeepAlive:  30,
		ClientID:   "device-1",
		Properties: &Properties{SessionExpiryInterval: 300, presence: presSessionExpiryInterval},
	}
	got := roundTrip(t, pkt, Version5).(*Connect)
	if got.ClientID != pkt.ClientID || got.KeepAlive != pkt.KeepAlive || !got.CleanStart {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Properties == nil || got.Properties.SessionExpiryInterval != 300 {
		t.Fatalf("properties not preserved: %+v", got.Properties)
	}
}

func TestRoundTripConnectWithWill(t *testing.T) {
	pkt := &Connect{
		Version:     Version5,
		ClientID:    "c1",
		WillFlag:    true,
		WillQoS:     1,
		WillTopic:   "status/c1",
		WillPayload: []byte("offline"),
		HasUsername: true,
		Username:    "svc",
		HasPassword: true,
		Password:    "secret",
	}
	got := roundTrip(t, pkt, Version5).(*Connect)
	if got.WillTopic != pkt.WillTopic || string(got.WillPayload) != "offline" {
		t.Fatalf("will not preserved: %+v", got)
	}
	if got.Username != "svc" || got.Password != "secret" {
		t.Fatalf("credentials not preserved: %+v", got)
	}
}

func TestRoundTripPublishQoS1(t *testing.T) {
	pkt := &Publish{
		QoS:      1,
		Topic:    "a/1",
		PacketID: 7,
		Payload:  []byte("hi"),
	}
	got := roundTrip(t, pkt, Version5).(*Publish)
	if got.Topic != "a/1" || got.PacketID != 7 || string(got.Payload) != "hi" {
		t.Fatalf("publish mismatch: %+v", got)
	}
}

func TestRoundTripSubscribe(t *testing.T) {
	pkt := &Subscribe{
		PacketID: 1,
		Topics: []SubscribeTopic{
			{Filter: "a/+", QoS: 1, NoLocal: true, RetainHandling: 2},
		},
	}
	got := roundTrip(t, pkt, Version5).(*Subscribe)
	if len(got.Topics) != 1 || got.Topics[0].Filter != "a/+" || !got.Topics[0].NoLocal {
		t.Fatalf("subscribe mismatch: %+v", got)
	}
}

func TestRoundTripPubackOmitsReasonWhenSuccess(t *testing.T) {
	pkt := &Puback{PacketID: 9, ReasonCode: ReasonSuccess}
	buf := GetBuffer(16)
	defer buf.Release()
	if err := Encode(buf, pkt, Version5); err != nil {
		t.Fatal(err)
	}
	// packet id (2) + header (2) = 4 bytes when reason/props are omitted.
	if len(buf.Bytes()) != 4 {
		t.Fatalf("expected omitted reason code, got %d bytes: %x", len(buf.Bytes()), buf.Bytes())
	}
}

func TestDecodeConnackDefaults(t *testing.T) {
	pkt := &Connack{SessionPresent: false, ReasonCode: 0}
	got := roundTrip(t, pkt, Version5).(*Connack)
	if !got.EffectiveRetainAvailable() {
		t.Fatal("expected retain-available default true")
	}
	if got.EffectiveMaximumQoS() != QoS2 {
		t.Fatal("expected maximum-qos default 2")
	}
	if got.EffectiveReceiveMaximum() != DefaultReceiveMaximum {
		t.Fatal("expected receive-maximum default 0xFFFF")
	}
}

func TestDuplicatePropertyRejected(t *testing.T) {
	var body []byte
	body = append(body, PropSessionExpiryInterval, 0, 0, 0, 10)
	body = append(body, PropSessionExpiryInterval, 0, 0, 0, 20)
	var buf []byte
	buf = appendVarInt(buf, len(body))
	buf = append(buf, body...)

	_, _, err := decodeProperties(buf)
	if err == nil {
		t.Fatal("expected DuplicateProperty error")
	}
	de, ok := err.(*DecodeError)
	if !ok || de.Kind != "DuplicateProperty" {
		t.Fatalf("expected DuplicateProperty, got %v", err)
	}
}

func TestUserPropertyAndSubscriptionIdentifierAllowDuplicates(t *testing.T) {
	p := &Properties{
		UserProperties:         []UserProperty{{Key: "a", Value: "1"}, {Key: "a", Value: "2"}},
		SubscriptionIdentifier: []int{1, 2},
	}
	encoded := appendProperties(nil, p)
	got, n, err := decodeProperties(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(encoded) {
		t.Fatalf("consumed %d of %d", n, len(encoded))
	}
	if !reflect.DeepEqual(got.UserProperties, p.UserProperties) {
		t.Fatalf("user properties mismatch: %+v", got.UserProperties)
	}
	if !reflect.DeepEqual(got.SubscriptionIdentifier, p.SubscriptionIdentifier) {
		t.Fatalf("subscription identifiers mismatch: %+v", got.SubscriptionIdentifier)
	}
}

func TestMatchTopicWildcards(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/+/c", "a/b/c", true},
		{"a/#", "a/b/c", true},
		{"a/#", "a", true},
		{"+/b", "a/b", true},
		{"+/b", "a/b/c", false},
		{"$SYS/foo", "$SYS/foo", true},
		{"+/foo", "$SYS/foo", false},
		{"#", "$SYS/foo", false},
	}
	for _, c := range cases {
		if got := MatchTopic(c.filter, c.topic); got != c.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", c.filter, c.topic, got, c.want)
		}
	}
}

func TestParseFilterShared(t *testing.T) {
	f, err := ParseFilter("$share/group1/a/b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Kind != FilterShared || f.Group != "group1" || f.Filter != "a/b" {
		t.Fatalf("unexpected parse: %+v", f)
	}

	if _, err := ParseFilter("$share//a/b"); err == nil {
		t.Fatal("expected error for empty group")
	}
	if _, err := ParseFilter("$share/group1/"); err == nil {
		t.Fatal("expected error for empty sub-filter")
	}
}

func TestParseFilterRejectsAdjacentWildcard(t *testing.T) {
	if _, err := ParseFilter("a/b+"); err == nil {
		t.Fatal("expected InvalidFilter for adjacent wildcard")
	}
	if _, err := ParseFilter("a/#/b"); err == nil {
		t.Fatal("expected InvalidFilter for # not in final position")
	}
}
