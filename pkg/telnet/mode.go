package telnet

// Mode supplies the meaning of input lines for one phase of a session
// (login, account creation, menus, play). The engine owns exactly one
// Mode at a time and calls it from the reactor goroutine.
type Mode interface {
	// Initialize runs when the mode becomes current. An error disconnects.
	Initialize() error
	// Prompt writes the prompt text through the engine.
	Prompt()
	// Process handles one complete input line without its newline.
	Process(line string)
	// Shutdown runs when the mode is replaced or the session ends.
	Shutdown()
	// Finish asks the mode to end the session gracefully.
	Finish()
}

// Transport is the outbound half of a connection. *socket.Conn implements it.
type Transport interface {
	Buffer(data []byte)
	RequestDisconnect()
	DisconnectWaiting() bool
}
