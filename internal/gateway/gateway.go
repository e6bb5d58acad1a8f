package gateway

// Messenger defines the interface for chat gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start begins the message listening loop
	Start() error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Attachment is a file sent alongside a reply.
type Attachment struct {
	Name string
	Data []byte
}

// Reply is what a chat gateway sends back for one incoming message.
type Reply struct {
	Text       string
	Attachment *Attachment
}
