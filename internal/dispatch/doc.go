// Package dispatch hands finished uploads to the background pipeline.
//
// A Runner accepts a Task describing the stored object and schedules it for
// processing. Two implementations exist: Pool runs tasks on a bounded
// goroutine pool inside the daemon, and Broker publishes them to RabbitMQ so
// a separate consumer (or the same daemon) can work them off a durable
// queue. The daemon picks one based on pipeline.runner in the config.
package dispatch
