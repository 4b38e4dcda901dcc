package presence

// Typing scope keys. A scope is a conversation, a group, or a bare user when
// the event carries no conversation reference.

func ConversationScope(id string) string { return "c:" + id }
func GroupScope(id string) string        { return "g:" + id }
func UserScope(id string) string         { return "u:" + id }
