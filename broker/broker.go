package broker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/DrmagicE/gmqtt"
	"github.com/DrmagicE/gmqtt/pkg/packets"

	"github.com/relabs-tech/shadowsync/core/logger"
	"github.com/relabs-tech/shadowsync/shadow"
	"github.com/relabs-tech/shadowsync/shadowstore"
)

// Broker is an MQTT broker with device shadow support.
type Broker struct {
	p *plugin
}

// Builder is a builder helper for the Broker.
type Builder struct {
	// Store is the shadow document store. This is mandatory.
	Store *shadowstore.Store
	// CACertFile is the file path to the X.509 certificate of the
	// certificate authority. This is mandatory.
	CACertFile string
	// CertFile is the file path to the X.509 certificate file. This is
	// mandatory.
	CertFile string
	// KeyFile is the file path to the X.509 private key file. This is
	// mandatory.
	KeyFile string
	// ListenAddr is the TLS listen address. The default is ":8883".
	ListenAddr string
	// TopicRoot is the root of the shadow service topics. The default is
	// shadow.DefaultTopicRoot.
	TopicRoot string
	// DeviceRoot is the root of the observer topics. The default is
	// shadow.DefaultDeviceRoot.
	DeviceRoot string
}

// plugin is the plugin for GMQTT
type plugin struct {
	tlsln        net.Listener
	clientsRwmux sync.RWMutex
	clients      map[net.Conn]string

	serviceMu sync.RWMutex
	service   gmqtt.Server

	handler    *handler
	topicRoot  string
	deviceRoot string
}

// NewBroker returns a new broker. The broker will not actually run until
// you call Run().
func NewBroker(b *Builder) *Broker {

	if b.Store == nil {
		panic("store is missing")
	}
	if len(b.CACertFile) == 0 {
		panic("ca-cert file missing")
	}
	if len(b.CertFile) == 0 {
		panic("cert file missing")
	}
	if len(b.KeyFile) == 0 {
		panic("key file missing")
	}

	crt, err := tls.LoadX509KeyPair(b.CertFile, b.KeyFile)
	if err != nil {
		panic(err)
	}

	caCert, err := os.ReadFile(b.CACertFile)
	if err != nil {
		panic(err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		panic("cannot load ca certificate")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{crt},
		ClientCAs:    caCertPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}
	listenAddr := b.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8883"
	}
	tlsln, err := tls.Listen("tcp", listenAddr, tlsConfig)
	if err != nil {
		panic(err)
	}

	topicRoot := b.TopicRoot
	if topicRoot == "" {
		topicRoot = shadow.DefaultTopicRoot
	}
	deviceRoot := b.DeviceRoot
	if deviceRoot == "" {
		deviceRoot = shadow.DefaultDeviceRoot
	}

	p := &plugin{
		tlsln:      tlsln,
		clients:    make(map[net.Conn]string),
		topicRoot:  topicRoot,
		deviceRoot: deviceRoot,
	}
	p.handler = &handler{
		store:      b.Store,
		publish:    p.publishQ1,
		topicRoot:  topicRoot,
		deviceRoot: deviceRoot,
		log:        logger.Default(),
	}

	return &Broker{p: p}
}

// Run is blocking and runs the server. It listens on syscall.SIGTERM for
// a graceful shutdown.
func (b *Broker) Run() {

	s := gmqtt.NewServer(
		gmqtt.WithTCPListener(b.p.tlsln),
		gmqtt.WithPlugin(b.p),
	)
	s.Run()

	fmt.Println("started...")
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	<-signalCh
	s.Stop(context.Background())
	fmt.Println("stopped")
}

// PublishMessageQ1 publishes an MQTT message with quality level 1. It
// satisfies the shadowstore.MessagePublisher interface.
func (b *Broker) PublishMessageQ1(topic string, payload []byte) {
	log.Printf("PublishMessageQ1 on %s (%d bytes)", topic, len(payload))
	b.p.publishQ1(topic, payload)
}

func (p *plugin) publishQ1(topic string, payload []byte) {
	p.serviceMu.RLock()
	service := p.service
	p.serviceMu.RUnlock()
	if service == nil {
		// Run() has not loaded the plugin yet
		log.Println("broker not running, dropping message for", topic)
		return
	}
	msg := gmqtt.NewMessage(topic, payload, packets.QOS_1)
	service.PublishService().Publish(msg)
}

// Load implements plugin interface
func (p *plugin) Load(service gmqtt.Server) error {
	log.Println("load shadow broker")
	p.serviceMu.Lock()
	p.service = service
	p.serviceMu.Unlock()
	return nil
}

// Unload implements plugin interface
func (p *plugin) Unload() error {
	return nil
}

// Name implements plugin interface
func (p *plugin) Name() string { return "shadow broker" }

// HookWrapper implements plugin interface
func (p *plugin) HookWrapper() gmqtt.HookWrapper {
	return gmqtt.HookWrapper{
		OnAcceptWrapper:     p.OnAcceptWrapper,
		OnConnectWrapper:    p.OnConnectWrapper,
		OnSubscribeWrapper:  p.OnSubscribeWrapper,
		OnSubscribedWrapper: p.OnSubscribedWrapper,
		OnMsgArrivedWrapper: p.OnMsgArrivedWrapper,
	}
}

func (p *plugin) clientFromConnection(conn net.Conn) string {
	p.clientsRwmux.RLock()
	defer p.clientsRwmux.RUnlock()
	return p.clients[conn]
}

// OnAcceptWrapper authorizes clients via TLS certificates
func (p *plugin) OnAcceptWrapper(accept gmqtt.OnAccept) gmqtt.OnAccept {
	return func(ctx context.Context, conn net.Conn) bool {
		tlsConn, ok := conn.(*tls.Conn)
		if ok {
			err := tlsConn.Handshake()
			if err != nil {
				return false
			}
			state := tlsConn.ConnectionState()
			cert := state.VerifiedChains[0][0]
			commonName := cert.Subject.CommonName
			if commonName == "" {
				log.Println("missing client name in certificate")
				return false
			}

			p.clientsRwmux.Lock()
			defer p.clientsRwmux.Unlock()
			p.clients[conn] = commonName
			log.Println("accept", commonName)
		}
		return accept(ctx, conn)
	}
}

// OnConnectWrapper enforces that the MQTT client ID matches the certificate common name
func (p *plugin) OnConnectWrapper(connect gmqtt.OnConnect) gmqtt.OnConnect {
	return func(ctx context.Context, client gmqtt.Client) (code uint8) {
		clientName := p.clientFromConnection(client.Connection())
		if client.OptionsReader().ClientID() != clientName {
			log.Println("connect denied,", client.OptionsReader().ClientID(), "not authorized")
			return packets.CodeNotAuthorized
		}
		log.Println("connect", clientName)
		return connect(ctx, client)
	}
}

// OnMsgArrivedWrapper intercepts shadow requests and republish rules
func (p *plugin) OnMsgArrivedWrapper(arrived gmqtt.OnMsgArrived) gmqtt.OnMsgArrived {
	return func(ctx context.Context, client gmqtt.Client, msg packets.Message) (valid bool) {
		p.handler.handleMessage(msg.Topic(), msg.Payload())
		return arrived(ctx, client, msg)
	}
}

// OnSubscribeWrapper enforces topic policy: clients may only subscribe
// below the shadow service root and the device observer root.
func (p *plugin) OnSubscribeWrapper(subscribe gmqtt.OnSubscribe) gmqtt.OnSubscribe {
	return func(ctx context.Context, client gmqtt.Client, topic packets.Topic) (qos uint8) {
		clientName := client.OptionsReader().ClientID()
		if !strings.HasPrefix(topic.Name, p.topicRoot+"/") &&
			!strings.HasPrefix(topic.Name, p.deviceRoot+"/") {
			log.Println("OnSubscribe", clientName, topic.Name, "denied!")
			return packets.SUBSCRIBE_FAILURE
		}
		return subscribe(ctx, client, topic)
	}
}

// OnSubscribedWrapper logs the subscription
func (p *plugin) OnSubscribedWrapper(subscribed gmqtt.OnSubscribed) gmqtt.OnSubscribed {
	return func(ctx context.Context, client gmqtt.Client, topic packets.Topic) {
		log.Println("OnSubscribed", client.OptionsReader().ClientID(), topic.Name)
		subscribed(ctx, client, topic)
	}
}
