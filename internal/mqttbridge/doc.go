// Package mqttbridge is the MQTT discovery/state bridge (C7). It owns the
// mqtt.Client, the device.Registry, the store.Cache dedupe layer, and the
// cover.Engine, and is the only package that knows both the bus-side device
// model and Home Assistant's MQTT Discovery conventions.
//
// On connect and on every reconnect it republishes discovery for every
// known device, re-subscribes to every command topic, and marks itself
// online — the broker may not have retained-message persistence enabled,
// and paho does not restore subscriptions across a reconnect on its own.
package mqttbridge
