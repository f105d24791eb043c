package main

import (
	"fmt"
	"strings"
	"sync"

	"buchat/models"
)

// threadPrinter writes new messages to stdout and remembers what it printed.
type threadPrinter struct {
	self string

	mu     sync.Mutex
	seen   map[string]struct{}
	typers string
}

func (p *threadPrinter) known() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.seen))
	for id := range p.seen {
		ids = append(ids, id)
	}
	return ids
}

func (p *threadPrinter) markKnown(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen == nil {
		p.seen = make(map[string]struct{})
	}
	p.seen[id] = struct{}{}
}

func (p *threadPrinter) print(messages []models.Message) {
	for _, msg := range messages {
		p.markKnown(msg.MessageID)
		if msg.SenderID == p.self {
			continue
		}
		fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04"), msg.SenderID, msg.Preview())
	}
}

// typing prints the typing line whenever the set of typers changes.
func (p *threadPrinter) typing(users []models.TypingUser) {
	names := make([]string, 0, len(users))
	for _, user := range users {
		name := user.Username
		if name == "" {
			name = user.UserID
		}
		names = append(names, name)
	}
	line := strings.Join(names, ", ")

	p.mu.Lock()
	changed := line != p.typers
	p.typers = line
	p.mu.Unlock()

	if !changed {
		return
	}
	if line == "" {
		fmt.Println("  (stopped typing)")
		return
	}
	fmt.Printf("  (%s typing...)\n", line)
}
