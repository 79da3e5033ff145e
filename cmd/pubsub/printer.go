package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/nerrad567/gray-logic-pubsub/internal/session"
)

// printer writes one line per delivered message:
//
//	sensors/kitchen/temp [sensors/+/temp] q1 retained 21.5
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

// listener is registered for every configured filter.
func (p *printer) listener(payload any, meta session.Metadata) error {
	var b strings.Builder

	b.WriteString(color.GreenString(meta.Topic))
	if meta.Filter != meta.Topic {
		b.WriteString(" " + color.HiBlackString("[%s]", meta.Filter))
	}
	b.WriteString(" " + color.BlueString("q%d", meta.QoS))
	if meta.Retain {
		b.WriteString(" " + color.YellowString("retained"))
	}
	if meta.Duplicate {
		b.WriteString(" " + color.YellowString("dup"))
	}
	b.WriteString(" " + formatPayload(payload) + "\n")

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := io.WriteString(p.out, b.String())
	return err
}

// formatPayload renders a decoded payload. Raw bytes are printed as hex.
func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return color.HiBlackString("<empty>")
	case string:
		return v
	case []byte:
		return hex.EncodeToString(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
