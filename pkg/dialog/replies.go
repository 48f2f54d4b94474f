package dialog

import (
	"fmt"
	"time"
)

// DefaultGreeting is spoken as turn zero once the transcription stream opens.
const DefaultGreeting = "Hello! Thanks for calling. How can I help you today?"

// Canned replies. The texts are fixed so the synthesis cache can reuse
// their audio across calls.
const (
	replyDidNotCatch   = "Sorry, I didn't catch that. Could you say it again?"
	replyApology       = "I'm sorry, I'm having trouble with that right now. Could you say it again?"
	replyPromptForHelp = "I'm here to help with appointments. What can I do for you?"
	replyAskName       = "Of course. May I ask who's calling?"
	replyAskTime       = "What day and time would you like?"
	replyRetryBooking  = "I'm sorry, I couldn't complete that booking just now. Could you ask me again in a moment?"
	replyNoSlots       = "I'm sorry, I couldn't find an open time soon. Is there a different day that works for you?"
)

func nameAcknowledgment(name string) string {
	return fmt.Sprintf("Nice to meet you, %s! How can I assist you today?", name)
}

func availableReply(t time.Time) string {
	return fmt.Sprintf("Yes, %s is available. Would you like me to book it?", speakTime(t))
}

func unavailableReply(t time.Time) string {
	return fmt.Sprintf("I'm sorry, %s is already taken. Would you like me to find the next open time?", speakTime(t))
}

func suggestReply(t time.Time) string {
	return fmt.Sprintf("The next open time I have is %s. Would you like me to book it?", speakTime(t))
}

func bookedReply(t time.Time) string {
	return fmt.Sprintf("You're all set! I've booked your appointment for %s.", speakTime(t))
}

func confirmTimeReply(t time.Time) string {
	return fmt.Sprintf("You'd like %s. Should I check if it's open, or book it right away?", speakTime(t))
}

// speakTime renders a time the way a receptionist would say it.
func speakTime(t time.Time) string {
	return t.Format("Monday, January 2 at 3:04 PM")
}
