// Package main provides the netgate CLI: a gateway that runs capability-gated
// network calls for untrusted callers.
package main

func main() {
	Execute()
}
