package telephony

import (
	"html/template"
	"log"
	"net/http"
)

var voiceTemplate = template.Must(template.New("voice").Parse(
	`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="{{.StreamURL}}">
            <Parameter name="number" value="{{.Number}}" />
        </Stream>
    </Connect>
    <Dial>{{.Number}}</Dial>
</Response>
`))

// VoiceHandler answers the provider's inbound-call webhook with a TwiML
// document that opens the media stream and dials the requested number. The
// number travels as a stream parameter so the session learns who is being
// called.
type VoiceHandler struct {
	// StreamURL is the absolute wss:// URL of the media-socket endpoint.
	StreamURL string
}

func (h *VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("number")
	if number == "" {
		http.Error(w, "missing number parameter", http.StatusBadRequest)
		return
	}

	log.Printf("[Webhook] inbound call, connecting stream and dialing %s", number)

	w.Header().Set("Content-Type", "text/xml")
	// The stream URL is operator config, not request input, and its wss
	// scheme would not survive the template's URL filter untyped.
	data := struct {
		StreamURL template.URL
		Number    string
	}{template.URL(h.StreamURL), number}
	if err := voiceTemplate.Execute(w, &data); err != nil {
		log.Printf("[Webhook] failed to render response: %v", err)
	}
}
