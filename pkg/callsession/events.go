package callsession

import "log"

// spawnGreeting speaks the scripted greeting as the session's first turn.
// It claims its gate slot on the event loop, so the greeting always owns
// turn zero even if an utterance finalizes immediately after.
func (c *Controller) spawnGreeting() {
	turn, ready, complete := c.gate.Begin()
	log.Printf("[Session %s] greeting caller as turn %d", shortID(c.sessionID), turn)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer complete()
		c.deliver(turn, ready, c.greeting)
	}()
}

// spawnTurn runs one dialogue turn for a finalized utterance. Gate slots
// are claimed here, on the event loop, so turns transmit in the order the
// utterances arrived no matter how long each one thinks.
func (c *Controller) spawnTurn(utterance string) {
	turn, ready, complete := c.gate.Begin()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer complete()

		res := c.dialog.HandleUtterance(c.ctx, c.sessionID, utterance, c.caller())
		if res.ExtractedName != "" {
			c.setCallerName(res.ExtractedName)
		}
		c.deliver(turn, ready, res.Reply)
	}()
}
