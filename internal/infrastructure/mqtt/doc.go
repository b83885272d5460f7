// Package mqtt wraps paho.mqtt.golang for the deployment service.
//
// The wrapper adds what the raw paho client leaves to the caller:
//
//   - Subscription tracking. Every Subscribe is recorded so that
//     subscriptions survive broker restarts; on reconnect the tracked
//     set is replayed before the OnConnect callback fires.
//   - Panic recovery around message handlers. A handler that panics
//     takes down its own message, not the process.
//   - Last Will and Testament on deployd/system/status, so peers can
//     tell a crash from a graceful shutdown.
//   - Sentinel errors (ErrNotConnected and friends) that callers can
//     test with errors.Is, which the dispatch layer relies on to keep
//     starting later subscriptions when the broker is away.
//
// Typical usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Request("sensor", "create"), 1, handler)
//
// All methods are safe for concurrent use.
package mqtt
