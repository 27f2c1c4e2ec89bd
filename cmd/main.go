// keyroute - routes global key and mouse button events to the game window
// that has focus, and exposes them over a local WebSocket API.
package main

func main() {
	Execute()
}
