package socketio

import (
	"bufio"
	"time"

	"github.com/cyberinferno/linechat/logger"
)

// run is the reader loop shared by server and client sessions. It delivers
// the synthetic connected event, then one EventMessage per line until the
// stream ends or fails, then flips liveness and delivers the synthetic
// disconnected event. Any read error is terminal; nothing is retried.
func (s *Session) run(onMessage MessageFunc, maxLineLength int) {
	s.deliver(onMessage, EventConnected, ConnectedText)

	initial := 4096
	if maxLineLength < initial {
		initial = maxLineLength
	}

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 0, initial), maxLineLength+1)
	for scanner.Scan() {
		line := scanner.Text()
		s.engine.metrics.MessageReceived(len(line))
		s.deliver(onMessage, EventMessage, line)
	}

	if err := scanner.Err(); !isClosedErr(err) {
		s.log.Debug("read loop ended", logger.Field{Key: "error", Value: err})
	}

	s.markDisconnected()
	s.deliver(onMessage, EventDisconnected, DisconnectedText)
}

func (s *Session) deliver(onMessage MessageFunc, kind EventKind, text string) {
	if onMessage == nil {
		return
	}

	onMessage(s, Message{Kind: kind, Text: text, At: time.Now()})
}
