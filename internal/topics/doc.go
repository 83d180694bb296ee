// Package topics holds the broker's subscription state: named topics, each
// mapping subscriber keys to the connection sinks that receive its messages,
// and the Registry that creates topics on demand and fans messages out.
package topics
