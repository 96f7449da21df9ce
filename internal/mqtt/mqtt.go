// Package mqtt is the broker side of the pipeline: connection
// supervision, the wildcard subscription feeding the intake loop, and
// publishing for the generator.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"mqpg/internal/config"
	"mqpg/internal/telemetry"
)

// Disconnector lets main tear down the broker connection on shutdown.
type Disconnector interface {
	Disconnect(waitms uint)
}

func options(conf config.MQTT) (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(conf.URL)

	if conf.Username != "" {
		opts.SetUsername(conf.Username)
	}
	if conf.Password != "" {
		opts.SetPassword(conf.Password)
	}

	clientID := conf.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("mqpg-%06d", time.Now().Nanosecond()/1000)
	}
	opts.SetClientID(clientID)

	var certs *x509.CertPool
	if conf.TLSServerCert != "" {
		certs = x509.NewCertPool()
		if !certs.AppendCertsFromPEM([]byte(conf.TLSServerCert)) {
			return nil, errors.New("unable to add tls_server_cert to CertPool")
		}
	}
	opts.SetTLSConfig(&tls.Config{
		InsecureSkipVerify: conf.TLSServerInsecure,
		RootCAs:            certs,
	})

	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetMaxReconnectInterval(5 * time.Minute)
	opts.SetConnectTimeout(connectTimeout)

	return opts, nil
}

// connectTimeout bounds one connect or publish handshake. Package
// variable so tests can shorten it.
var connectTimeout = 10 * time.Second

// connect makes bounded attempts with a fixed delay between them. The
// process cannot run without the broker, so exhaustion is returned as a
// fatal error. Once connected, paho's auto reconnect takes over.
func connect(conf config.MQTT, onConnect mqtt.OnConnectHandler) (mqtt.Client, error) {
	opts, err := options(conf)
	if err != nil {
		return nil, err
	}
	opts.SetOnConnectHandler(onConnect)

	mc := mqtt.NewClient(opts)
	delay := conf.ConnectDelay.Std()
	for attempt := 1; ; attempt++ {
		tok := mc.Connect()
		// a token that never completes is a failed attempt, not a
		// success with a nil error
		if !tok.WaitTimeout(connectTimeout) {
			err = errors.Errorf("connect to %s timed out after %s", conf.URL, connectTimeout)
		} else {
			err = tok.Error()
		}
		if err == nil {
			log.Printf("info: connected to MQTT broker at %s", conf.URL)
			return mc, nil
		}
		if attempt >= conf.ConnectAttempts {
			break
		}
		log.Printf("warning: MQTT connection attempt %d/%d failed, retrying in %s: %v",
			attempt, conf.ConnectAttempts, delay, err)
		time.Sleep(delay)
	}

	return nil, errors.Wrapf(err, "MQTT broker unreachable after %d attempts", conf.ConnectAttempts)
}

// Subscribe connects to the broker and subscribes fwd to conf.Topic. The
// subscription is installed from the on-connect handler so it survives
// paho's reconnects. Should only be called once per process.
func Subscribe(conf config.MQTT, fwd func(telemetry.Message)) (Disconnector, error) {
	c, err := connect(conf, func(c mqtt.Client) {
		tok := c.Subscribe(conf.Topic, 0, func(client mqtt.Client, message mqtt.Message) {
			fwd(telemetry.Message{
				Time:    time.Now(),
				Topic:   message.Topic(),
				Payload: message.Payload(),
			})
		})
		if !tok.WaitTimeout(30 * time.Second) {
			log.Printf("error: subscribing to %s timed out", conf.Topic)
			return
		}
		if err := tok.Error(); err != nil {
			log.Printf("error: subscribing to %s: %v", conf.Topic, err)
			return
		}
		log.Printf("info: subscribed to %s", conf.Topic)
	})
	return c, err
}

// A Publisher is the generator's side of the broker connection.
type Publisher struct {
	mc mqtt.Client
}

// NewPublisher connects with the same bounded retry discipline as
// Subscribe but installs no message handler.
func NewPublisher(conf config.MQTT) (*Publisher, error) {
	mc, err := connect(conf, nil)
	if err != nil {
		return nil, err
	}
	return &Publisher{mc: mc}, nil
}

// Publish sends one payload and waits for the client to hand it off.
func (p *Publisher) Publish(topic string, payload []byte) error {
	tok := p.mc.Publish(topic, 0, false, payload)
	if !tok.WaitTimeout(connectTimeout) {
		return errors.Errorf("publish to %s timed out after %s", topic, connectTimeout)
	}
	return errors.Wrapf(tok.Error(), "publishing to %s", topic)
}

// Disconnect tears down the publisher connection.
func (p *Publisher) Disconnect(waitms uint) {
	p.mc.Disconnect(waitms)
}
