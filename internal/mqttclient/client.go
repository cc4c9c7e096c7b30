package mqttclient

import (
	"encoding/json"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// statusTopic carries the ingestor's retained presence payload. The broker
// publishes the "offline" last will on our behalf if the connection drops
// without a clean disconnect.
const statusTopic = "rtls/ingestor/status"

type MessageHandler func(topic string, payload []byte)

type Client struct {
	conn      mqtt.Client
	clientID  string
	topics    []string
	qos       byte
	connected atomic.Bool
	log       zerolog.Logger
	handler   MessageHandler
}

type Options struct {
	BrokerURL string
	ClientID  string
	Topics    []string
	QoS       byte
	// Handler receives every message. Installed before the connect so no
	// delivery can race the subscription.
	Handler MessageHandler
	Log     zerolog.Logger
}

type statusPayload struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		clientID: opts.ClientID,
		topics:   opts.Topics,
		qos:      opts.QoS,
		handler:  opts.Handler,
		log:      opts.Log,
	}

	will, _ := json.Marshal(statusPayload{Status: "offline", ClientID: opts.ClientID})

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(1 * time.Second).
		SetMaxReconnectInterval(30 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetOrderMatters(false).
		SetBinaryWill(statusTopic, will, 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetDefaultPublishHandler(c.onMessage)

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Strs("topics", c.topics).Uint8("qos", c.qos).Msg("mqtt connected, subscribing")

	online, _ := json.Marshal(statusPayload{Status: "online", ClientID: c.clientID})
	client.Publish(statusTopic, 1, true, online)

	filters := make(map[string]byte, len(c.topics))
	for _, t := range c.topics {
		filters[t] = c.qos
	}
	token := client.SubscribeMultiple(filters, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if c.handler != nil {
		c.handler(msg.Topic(), msg.Payload())
		return
	}
	c.log.Debug().
		Str("topic", msg.Topic()).
		Int("payload_size", len(msg.Payload())).
		Msg("mqtt message received")
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Close publishes a retained "offline" status and disconnects cleanly.
func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	offline, _ := json.Marshal(statusPayload{Status: "offline", ClientID: c.clientID})
	token := c.conn.Publish(statusTopic, 1, true, offline)
	token.WaitTimeout(2 * time.Second)
	c.conn.Disconnect(1000)
}
