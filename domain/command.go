package domain

// Command is an intent issued by the presentation boundary.
// Commands are applied by the session manager on its own goroutine;
// issuing one never mutates state directly.
type Command interface {
	CommandName() string
}

// HostCommand asks to create an addressable session and become its host.
type HostCommand struct {
	SessionName string
	Capacity    int
}

func (HostCommand) CommandName() string { return "Host" }

// JoinCommand asks to resolve a session by name (or direct address)
// and join it as a client.
type JoinCommand struct {
	Target string
}

func (JoinCommand) CommandName() string { return "Join" }

// ReadyCommand toggles the local participant's readiness.
// The host is the single writer for this field; a client's command is an
// intent sent to the host, never applied optimistically.
type ReadyCommand struct {
	Ready bool
}

func (ReadyCommand) CommandName() string { return "Ready" }

// ChatCommand sends a chat line. Delivery is fire-and-forget; the sender
// sees its own message only through the host broadcast.
type ChatCommand struct {
	Text string
}

func (ChatCommand) CommandName() string { return "Chat" }

// DisconnectCommand tears the session down. Idempotent.
type DisconnectCommand struct{}

func (DisconnectCommand) CommandName() string { return "Disconnect" }
