// Package mqtt provides MQTT client connectivity for busprobridge.
//
// This package manages:
//   - Connection to the configured broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on every reconnect
//   - Last Will and Testament (LWT) on the availability topic
//   - Connection health monitoring
//
// # Architecture
//
// busprobridge publishes field-bus device state under a configurable
// topic prefix (default "buspro/") following a scheme Home Assistant's
// MQTT Discovery integration understands, and subscribes to a matching
// set of command topics that drive the field bus.
//
//	BusPro gateway (UDP) ↔ busprobridge ↔ MQTT broker ↔ Home Assistant
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, topics.Availability())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        return router.Route(topic, payload)
//	    })
//
//	client.PublishRetained(topics.LightState(addr), payload)
package mqtt
