package alerts

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTNotifier publishes fired alerts as JSON to a single MQTT topic,
// grounded on mqtt_publisher.go's client-options/handler shape
// (generalised from a metrics publisher to a fire-and-forget alert
// publisher).
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
}

// NewMQTTNotifier connects to broker and returns a notifier publishing
// to topic. clientID is generated when blank.
func NewMQTTNotifier(broker, clientID, topic string) (*MQTTNotifier, error) {
	if clientID == "" {
		clientID = generateClientID()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Println("alerts: connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("alerts: MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return &MQTTNotifier{client: client, topic: topic}, nil
}

// Notify implements Notifier, publishing event as JSON at QoS 0.
// Delivery failures are logged, never raised.
func (n *MQTTNotifier) Notify(event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("alerts: MQTT marshal failed: %v", err)
		return
	}
	token := n.client.Publish(n.topic, 0, false, body)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("alerts: MQTT publish failed: %v", token.Error())
		}
	}()
}

func generateClientID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "intercept_alerts_" + hex.EncodeToString(buf)
}
