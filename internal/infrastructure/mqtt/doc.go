// Package mqtt provides the MQTT connection used by IR Learn to talk to the
// teaching service and to serve control requests.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and payload size checks
//   - Subscriptions that are restored after every reconnect
//   - Last Will and Testament on graylogic/irlearn/status
//   - Panic recovery around message handlers
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllLearnAcks(), 1,
//	    func(topic string, payload []byte) error {
//	        return handleAck(mqtt.LastSegment(topic), payload)
//	    })
//
// Integration tests against a live broker are behind the "integration"
// build tag.
package mqtt
