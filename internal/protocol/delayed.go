package protocol

import (
	"strings"
)

// delayedCommands buffers outgoing control commands so that a
// round-trip can be piggy-backed onto the next real request (spec.md
// §3 "delayed command queue", §4.E). Each buffered command is framed as
// its own complete message (so the server, which acknowledges each
// command with its own reply message, sees exactly the shape it
// expects) but all buffered commands plus the real request that
// triggers the flush are written back-to-back before anything is read
// back, which is what makes the whole exchange one network round-trip
// rather than one per command.
type delayedCommands struct {
	cmds   [][]byte
	labels []string
}

func newDelayedCommands() *delayedCommands {
	return &delayedCommands{}
}

// add appends cmd as an ASCII line (terminated with \n if not already)
// and records label in the expected-responses FIFO.
func (d *delayedCommands) add(cmd, label string) {
	line := cmd
	if !strings.HasSuffix(cmd, "\n") {
		line += "\n"
	}
	d.cmds = append(d.cmds, []byte(line))
	d.labels = append(d.labels, label)
}

// empty reports whether there is nothing buffered.
func (d *delayedCommands) empty() bool { return len(d.cmds) == 0 }

// send flushes the buffered commands, each as its own message, over mw.
func (d *delayedCommands) send(mw *messageWriter) error {
	for _, cmd := range d.cmds {
		if err := mw.writeMessage(cmd); err != nil {
			return err
		}
	}
	d.cmds = nil
	return nil
}

// sendPlus flushes the buffered commands (each its own message) and
// then writes extra (the actual SQL request) as the final message, all
// before any reply is read — this is how execute piggy-backs pending
// control commands onto the next real request in one round-trip
// (spec.md §4.E).
func (d *delayedCommands) sendPlus(mw *messageWriter, extra []byte) error {
	if err := d.send(mw); err != nil {
		return err
	}
	return mw.writeMessage(extra)
}

// receive reads one whole reply message per pending label and inspects
// only its leading byte: a `!` indicates a server error, surfaced as
// "delayed {label}: {text}"; anything else is an acknowledgement for a
// control command and carries no data the client needs, so it is
// discarded.
func (d *delayedCommands) receive(mr *messageReader) error {
	labels := d.labels
	d.labels = nil
	var firstErr error
	for _, label := range labels {
		reply, err := mr.readWholeMessage()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(reply) > 0 && reply[0] == '!' {
			if firstErr == nil {
				firstErr = &ServerError{Text: "delayed " + label + ": " + string(reply[1:])}
			}
		}
	}
	return firstErr
}
