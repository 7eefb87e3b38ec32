// Package mqtt connects the backend to the Airsense MQTT v5 bus and routes
// inbound messages to registered handlers.
//
// The Client is a topic dispatcher. Handlers are registered against
// subscription filters; on every (re)connection the client subscribes to the
// union of registered filters, and each inbound message is handed to every
// handler whose filter matches it (see Match). Handlers run concurrently and
// independently: an error or panic in one is logged and does not affect the
// others or the connection.
//
// Connection management, reconnection and MQTT v5 user properties come from
// github.com/eclipse/paho.golang/autopaho.
//
// # Topics
//
//	sensor/{parameter}   sensor -> backend, user property serial-number
//	room/{roomId}        backend -> devices, {"fan_speed":n,"timestamp":ms}
//	device/{deviceId}    backend -> one device
//
// # Usage
//
//	client := mqtt.New(mqtt.OptionsFromConfig(cfg.MQTT, creds), logger)
//	_ = client.Register(mqtt.Topics{}.AllSensors(), ingestHandler)
//
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Stop(shutdownCtx)
//
//	client.Publish(ctx, mqtt.Topics{}.Room(5), cmd)
package mqtt
