// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bureau-foundation/tracker-gateway/lib/testutil"
)

// doneToken is an mqtt.Token that has already completed.
type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient records subscriptions and publishes. Methods not
// overridden panic through the nil embedded interface.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	subscribed   []string
	handlers     map[string]mqtt.MessageHandler
	published    []published
	subscribeErr error
	connectToken mqtt.Token
}

func (f *fakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	if f.handlers == nil {
		f.handlers = make(map[string]mqtt.MessageHandler)
	}
	f.handlers[topic] = callback
	return doneToken{err: f.subscribeErr}
}

func (f *fakeClient) Connect() mqtt.Token {
	return f.connectToken
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic, qos, retained, payload.([]byte)})
	return doneToken{}
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func newTestClient(fake *fakeClient, subscriptions []string, onMessage func(string, []byte)) *Client {
	return &Client{
		client:        fake,
		subscriptions: subscriptions,
		onMessage:     onMessage,
		logger:        slog.New(slog.DiscardHandler),
	}
}

func TestSubscribeAll(t *testing.T) {
	fake := &fakeClient{}
	received := make(chan string, 1)
	client := newTestClient(fake, []string{"tracker/+/cmd", "fleet/+/cmd"}, func(topic string, payload []byte) {
		received <- topic + " " + string(payload)
	})

	client.subscribeAll(fake)

	if len(fake.subscribed) != 2 || fake.subscribed[0] != "tracker/+/cmd" || fake.subscribed[1] != "fleet/+/cmd" {
		t.Fatalf("subscribed = %v", fake.subscribed)
	}

	// Delivery through the registered handler reaches OnMessage.
	fake.handlers["tracker/+/cmd"](fake, fakeMessage{topic: "tracker/860599001234567/cmd", payload: []byte("AT+GTRTO")})
	got := testutil.RequireReceive(t, received, time.Second)
	if got != "tracker/860599001234567/cmd AT+GTRTO" {
		t.Errorf("delivered %q", got)
	}
}

func TestSubscribeAll_FailureIsNotFatal(t *testing.T) {
	fake := &fakeClient{subscribeErr: errors.New("not authorized")}
	client := newTestClient(fake, []string{"a/+/cmd", "b/+/cmd"}, nil)

	client.subscribeAll(fake)

	if len(fake.subscribed) != 2 {
		t.Errorf("a failing subscription stopped the rest: %v", fake.subscribed)
	}
}

func TestHandleMessage_CopiesPayload(t *testing.T) {
	fake := &fakeClient{}
	var delivered []byte
	client := newTestClient(fake, nil, func(_ string, payload []byte) { delivered = payload })

	source := []byte("list")
	client.handleMessage(fake, fakeMessage{topic: "x/*/cmd", payload: source})
	source[0] = 'X'
	if string(delivered) != "list" {
		t.Errorf("payload aliased paho's buffer: %q", delivered)
	}
}

func TestPublish(t *testing.T) {
	fake := &fakeClient{}
	client := newTestClient(fake, nil, nil)

	client.Publish("tracker/raw/860599001234567", []byte("+RESP:GTFRI$"))

	if len(fake.published) != 1 {
		t.Fatalf("published %d messages", len(fake.published))
	}
	message := fake.published[0]
	if message.topic != "tracker/raw/860599001234567" || message.qos != 0 || message.retained {
		t.Errorf("published %+v, want QoS 0 not retained", message)
	}
	if string(message.payload) != "+RESP:GTFRI$" {
		t.Errorf("payload = %q", message.payload)
	}
}

// pendingToken never completes.
type pendingToken struct {
	doneToken
}

func (pendingToken) WaitTimeout(time.Duration) bool { return false }

func TestConnectWait(t *testing.T) {
	fake := &fakeClient{connectToken: doneToken{}}
	if err := newTestClient(fake, nil, nil).ConnectWait(time.Second); err != nil {
		t.Errorf("ConnectWait: %v", err)
	}

	refused := errors.New("connection refused")
	fake = &fakeClient{connectToken: doneToken{err: refused}}
	if err := newTestClient(fake, nil, nil).ConnectWait(time.Second); !errors.Is(err, refused) {
		t.Errorf("ConnectWait error = %v, want wrapped refusal", err)
	}

	fake = &fakeClient{connectToken: pendingToken{}}
	if err := newTestClient(fake, nil, nil).ConnectWait(time.Millisecond); err == nil {
		t.Error("ConnectWait succeeded on a pending connect")
	}
}

func TestParseProtocolVersion(t *testing.T) {
	tests := []struct {
		name string
		want uint
	}{
		{"mqttv31", 3},
		{"mqttv311", 4},
	}
	for _, test := range tests {
		got, err := ParseProtocolVersion(test.name)
		if err != nil || got != test.want {
			t.Errorf("ParseProtocolVersion(%q) = %d, %v", test.name, got, err)
		}
	}
	for _, name := range []string{"", "mqttv5", "MQTTV311"} {
		if _, err := ParseProtocolVersion(name); !errors.Is(err, ErrInvalidProtocol) {
			t.Errorf("ParseProtocolVersion(%q) error = %v, want ErrInvalidProtocol", name, err)
		}
	}
}

func TestDeviceFromCommandTopic(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"owntracks/gv/92939391/cmd", "92939391", true},
		{"tracker/*/cmd", "*", true},
		{"860599001234567/cmd", "860599001234567", true},
		{"tracker/860599001234567", "", false},
		{"tracker/860599001234567/cmd/extra", "", false},
		{"tracker//cmd", "", false},
		{"/cmd", "", false},
		{"cmd", "", false},
	}
	for _, test := range tests {
		got, ok := DeviceFromCommandTopic(test.topic)
		if got != test.want || ok != test.wantOK {
			t.Errorf("DeviceFromCommandTopic(%q) = %q, %v; want %q, %v", test.topic, got, ok, test.want, test.wantOK)
		}
	}
}

func TestParseAdminCommand(t *testing.T) {
	for _, payload := range []string{"list", "stats", "dump", "ping"} {
		command, ok := ParseAdminCommand([]byte(payload))
		if !ok || string(command) != payload {
			t.Errorf("ParseAdminCommand(%q) = %q, %v", payload, command, ok)
		}
	}
	for _, payload := range []string{"LIST", "list ", "", "reboot"} {
		if _, ok := ParseAdminCommand([]byte(payload)); ok {
			t.Errorf("ParseAdminCommand(%q) accepted", payload)
		}
	}
}

func TestTopics(t *testing.T) {
	if got := RawTopic("tracker/raw", "860599001234567"); got != "tracker/raw/860599001234567" {
		t.Errorf("RawTopic = %q", got)
	}
	if got := OfflineTopic("tracker/lwt", "111"); got != "tracker/lwt/111" {
		t.Errorf("OfflineTopic = %q", got)
	}
}

func TestPayloads(t *testing.T) {
	now := time.Unix(1772366400, 0)

	if got := string(OfflinePayload(now)); got != `{"_type":"lwt","tst":1772366400}` {
		t.Errorf("OfflinePayload = %s", got)
	}
	if got := string(PongPayload(now)); got != `{"_type":"pong","tst":1772366400}` {
		t.Errorf("PongPayload = %s", got)
	}

	var stats struct {
		Type        string            `json:"_type"`
		Connections int               `json:"connections"`
		Counters    map[string]uint64 `json:"counters"`
	}
	if err := json.Unmarshal(StatsPayload(now, 0, map[string]uint64{"line.process": 5}), &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.Type != "stats" || stats.Connections != 0 || stats.Counters["line.process"] != 5 {
		t.Errorf("stats = %+v", stats)
	}
}

func writeTestCertificate(t *testing.T, directory string) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test broker CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshaling key: %v", err)
	}

	certFile = filepath.Join(directory, "ca.pem")
	keyFile = filepath.Join(directory, "ca.key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestNewTLSConfig(t *testing.T) {
	directory := t.TempDir()
	certFile, keyFile := writeTestCertificate(t, directory)

	config, err := NewTLSConfig(certFile, "", "", "")
	if err != nil {
		t.Fatalf("CA file only: %v", err)
	}
	if config.RootCAs == nil || len(config.Certificates) != 0 || config.InsecureSkipVerify {
		t.Errorf("unexpected config: %+v", config)
	}

	config, err = NewTLSConfig("", directory, certFile, keyFile)
	if err != nil {
		t.Fatalf("CA path with client certificate: %v", err)
	}
	if len(config.Certificates) != 1 {
		t.Errorf("client certificates = %d", len(config.Certificates))
	}
}

func TestNewTLSConfig_Errors(t *testing.T) {
	directory := t.TempDir()
	notPEM := filepath.Join(directory, "garbage.pem")
	if err := os.WriteFile(notPEM, []byte("not a certificate"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name                              string
		caFile, caPath, certFile, keyFile string
	}{
		{"missing CA file", filepath.Join(directory, "absent.pem"), "", "", ""},
		{"CA file without certificates", notPEM, "", "", ""},
		{"missing CA directory", "", filepath.Join(directory, "absent"), "", ""},
		{"nothing configured", "", "", "", ""},
		{"missing client key", "", "", "", ""},
	}
	certFile, _ := writeTestCertificate(t, t.TempDir())
	tests[4].caFile = certFile
	tests[4].certFile = certFile
	tests[4].keyFile = filepath.Join(directory, "absent.key")

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewTLSConfig(test.caFile, test.caPath, test.certFile, test.keyFile); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
