// Package mqtt implements the shadow transport over an MQTT connection,
// delegating the protocol work to the Eclipse Paho client.
//
// The client keeps a registry of subscriptions and re-subscribes after a
// reconnect before signaling the resume, so handlers never miss messages
// on topics they subscribed to.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/shadowsync/core/logger"
	"github.com/relabs-tech/shadowsync/shadow"
)

// Client is an MQTT transport for the shadow reconciler. It satisfies the
// shadow.Transport interface.
type Client struct {
	id           string
	client       paho.Client
	cleanSession bool
	log          *logrus.Entry

	mu        sync.Mutex
	subs      map[string]shadow.MessageHandler
	connected bool

	onInterrupt func(error)
	onResume    func(sessionPresent bool)
}

// Builder is a builder helper for the Client.
type Builder struct {
	// Endpoint is the broker address as host:port. This is mandatory.
	Endpoint string
	// ClientID identifies this connection. This is mandatory and must
	// match the common name of the client certificate when TLS is used.
	ClientID string
	// CertFile and KeyFile are the X.509 client certificate and key.
	// Both set enables mutual TLS.
	CertFile string
	KeyFile  string
	// CACertFile is the certificate authority to trust. Optional.
	CACertFile string
	// CleanSession discards the broker-side session on connect. With a
	// persisted session the reconciler resumes in its previous state
	// after a reconnect instead of re-fetching the shadow.
	CleanSession bool
	// KeepAlive defaults to 30 seconds.
	KeepAlive time.Duration
	// Log is the logger to use. Defaults to the standard logger.
	Log *logrus.Entry
}

// NewClient returns a new client. The client will not actually connect
// until you call Connect().
func NewClient(b *Builder) *Client {
	if b.Endpoint == "" {
		panic("endpoint is missing")
	}
	if b.ClientID == "" {
		panic("client id is missing")
	}
	log := b.Log
	if log == nil {
		log = logger.Default()
	}

	c := &Client{
		id:           b.ClientID,
		cleanSession: b.CleanSession,
		log:          log.WithField("client", b.ClientID),
		subs:         make(map[string]shadow.MessageHandler),
	}

	keepAlive := b.KeepAlive
	if keepAlive == 0 {
		keepAlive = 30 * time.Second
	}

	broker := "tcp://" + b.Endpoint
	var tlsConfig *tls.Config
	if b.CertFile != "" && b.KeyFile != "" {
		crt, err := tls.LoadX509KeyPair(b.CertFile, b.KeyFile)
		if err != nil {
			panic(err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{crt}}
		if b.CACertFile != "" {
			caCert, err := os.ReadFile(b.CACertFile)
			if err != nil {
				panic(err)
			}
			caCertPool := x509.NewCertPool()
			if !caCertPool.AppendCertsFromPEM(caCert) {
				panic("cannot load ca certificate")
			}
			tlsConfig.RootCAs = caCertPool
		}
		broker = "ssl://" + b.Endpoint
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(b.ClientID).
		SetCleanSession(b.CleanSession).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = paho.NewClient(opts)
	return c
}

// OnConnectionInterrupted registers the callback for connection loss.
// Register before Connect.
func (c *Client) OnConnectionInterrupted(fn func(error)) {
	c.onInterrupt = fn
}

// OnConnectionResumed registers the callback for a re-established
// connection. It runs after all previous subscriptions are restored.
// Register before Connect.
func (c *Client) OnConnectionResumed(fn func(sessionPresent bool)) {
	c.onResume = fn
}

// Connect connects to the broker and blocks until the connection is
// established.
func (c *Client) Connect() error {
	c.log.Infoln("connecting with client id", c.id)
	token := c.client.Connect()
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("connect mqtt client: %w", token.Error())
	}
	return nil
}

// Disconnect closes the connection, allowing in-flight work a short
// grace period.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	c.log.Infoln("disconnected")
}

// SubscribeQ1 subscribes the handler with quality level 1 and blocks until
// the subscription is acknowledged by the broker.
func (c *Client) SubscribeQ1(topic string, handler shadow.MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}
	c.log.Debugln("subscribed to", topic)
	return nil
}

// PublishQ1 publishes with quality level 1. Delivery completes
// asynchronously; failures are logged, not returned.
func (c *Client) PublishQ1(topic string, payload []byte) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected, cannot publish to %s", topic)
	}
	token := c.client.Publish(topic, 1, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			c.log.Errorln("publish to", topic, "failed:", token.Error())
		}
	}()
	return nil
}

func (c *Client) onConnect(_ paho.Client) {
	c.mu.Lock()
	first := !c.connected
	c.connected = true
	subs := make(map[string]shadow.MessageHandler, len(c.subs))
	for topic, handler := range c.subs {
		subs[topic] = handler
	}
	c.mu.Unlock()

	if first {
		c.log.Infoln("connected")
		return
	}

	c.log.Infof("reconnected, restoring %d subscriptions", len(subs))
	for topic, handler := range subs {
		h := handler
		token := c.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
			h(msg.Topic(), msg.Payload())
		})
		token.Wait()
		if token.Error() != nil {
			c.log.Errorln("resubscribe to", topic, "failed:", token.Error())
		}
	}
	if c.onResume != nil {
		c.onResume(!c.cleanSession)
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warnln("connection lost:", err)
	if c.onInterrupt != nil {
		c.onInterrupt(err)
	}
}
