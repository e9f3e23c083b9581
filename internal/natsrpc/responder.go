// Package natsrpc serves store commands over NATS request/reply.
package natsrpc

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jcalabro/sketchkv/internal/command"
	"github.com/jcalabro/sketchkv/internal/config"
)

// requestTimeout bounds the execution of a single command.
const requestTimeout = 5 * time.Second

// Request is the JSON body of a command request.
type Request struct {
	Args []string `json:"args"`
}

// Reply is the JSON body sent back to the requester. Error is empty on
// success.
type Reply struct {
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Responder answers command requests published on a NATS subject.
type Responder struct {
	nc         *nats.Conn
	sub        *nats.Subscription
	subject    string
	queue      string
	dispatcher *command.Dispatcher
}

// NewResponder connects to the NATS server named in cfg.
func NewResponder(cfg config.NATSConfig, dispatcher *command.Dispatcher) (*Responder, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("sketchd"))
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Responder{nc: nc, subject: cfg.Subject, queue: cfg.Queue, dispatcher: dispatcher}, nil
}

// Start subscribes to the configured subject. With a queue group set,
// requests are spread over every responder in the group.
func (r *Responder) Start() error {
	handler := func(msg *nats.Msg) {
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(r.Handle(msg.Data)); err != nil {
			log.Printf("Error responding on %s: %v", msg.Reply, err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if r.queue != "" {
		sub, err = r.nc.QueueSubscribe(r.subject, r.queue, handler)
	} else {
		sub, err = r.nc.Subscribe(r.subject, handler)
	}
	if err != nil {
		return err
	}
	r.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for requests...", r.subject)
	return nil
}

// Handle executes one encoded request and returns the encoded reply. A
// panicking command is logged and answered with an internal error.
func (r *Responder) Handle(data []byte) (reply []byte) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("Command panicked: %v", p)
			reply = encode(Reply{Error: "internal error"})
		}
	}()

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return encode(Reply{Error: "invalid json"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	result, err := r.dispatcher.Execute(ctx, req.Args)
	if err != nil {
		if !command.IsClientError(err) {
			log.Printf("Command %v failed: %v", req.Args, err)
		}
		return encode(Reply{Error: err.Error()})
	}
	return encode(Reply{Result: result})
}

func encode(reply Reply) []byte {
	data, err := json.Marshal(reply)
	if err != nil {
		log.Printf("Error marshalling reply: %v", err)
		data, _ = json.Marshal(Reply{Error: "failed to encode reply"})
	}
	return data
}

// Close drains the subscription and closes the NATS connection.
func (r *Responder) Close() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
	if r.nc != nil {
		r.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
