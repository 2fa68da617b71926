package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// InteractiveMessage is the tagged-union wire schema exchanged over an
// established Noise channel (spec §6).
type InteractiveMessage struct {
	Type string `json:"type"` // "request_receipt" | "confirm_receipt" | "reject" | "cancel"

	// request_receipt
	ProvisionalReceiptID string          `json:"provisional_receipt_id,omitempty"`
	Amount               string          `json:"amount,omitempty"`
	Currency             string          `json:"currency,omitempty"`
	Method               MethodId        `json:"method,omitempty"`
	Metadata             json.RawMessage `json:"metadata,omitempty"`

	// confirm_receipt
	Receipt *PaykitReceipt `json:"receipt,omitempty"`

	// reject / cancel
	Reason string `json:"reason,omitempty"`
}

// PaykitReceipt mirrors the Receipt data model (spec §3, §6).
type PaykitReceipt struct {
	ReceiptID string          `json:"receipt_id"`
	Payer     string          `json:"payer"`
	Payee     string          `json:"payee"`
	MethodID  MethodId        `json:"method_id"`
	Amount    *string         `json:"amount,omitempty"`
	Currency  *string         `json:"currency,omitempty"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewReceiptID generates a CSPRNG-backed UUID v4 receipt identifier,
// preventing collision and replay at the application layer (spec §4.10).
func NewReceiptID() string {
	return uuid.New().String()
}

// PayerState is the payer side of the interactive session state machine
// (spec §4.10): Idle -> AwaitingConfirm -> Done, or Failed on timeout/
// unexpected message.
type PayerState int

const (
	PayerIdle PayerState = iota
	PayerAwaitingConfirm
	PayerDone
	PayerFailed
)

// PayerSession drives the payer side of one interactive payment.
type PayerSession struct {
	channel              *Channel
	state                PayerState
	provisionalReceiptID string
	receipt              *PaykitReceipt
	failReason           string
}

// NewPayerSession wraps an established Channel for the payer role.
func NewPayerSession(channel *Channel) *PayerSession {
	return &PayerSession{channel: channel, state: PayerIdle}
}

func (s *PayerSession) State() PayerState { return s.state }

// SendRequestReceipt sends the initial request over the channel and
// transitions Idle -> AwaitingConfirm.
func (s *PayerSession) SendRequestReceipt(provisionalReceiptID string, amount, currency string, method MethodId, metadata json.RawMessage) error {
	if s.state != PayerIdle {
		s.state = PayerFailed
		return NewError(CodeInvalidData, "send_request_receipt called outside Idle state")
	}
	msg := InteractiveMessage{
		Type:                 "request_receipt",
		ProvisionalReceiptID: provisionalReceiptID,
		Amount:               amount,
		Currency:             currency,
		Method:               method,
		Metadata:             metadata,
	}
	if err := s.channel.Send(msg); err != nil {
		s.state = PayerFailed
		return err
	}
	s.provisionalReceiptID = provisionalReceiptID
	s.state = PayerAwaitingConfirm
	return nil
}

// AwaitConfirm blocks for the recipient's reply and transitions
// AwaitingConfirm -> Done on a confirm_receipt that carries a receipt, or
// -> Failed on rejection, cancellation, a confirm_receipt without a receipt,
// or an unexpected message type. The receipt's ReceiptID is not compared
// with the provisional receipt id sent in the request.
func (s *PayerSession) AwaitConfirm() (*PaykitReceipt, error) {
	if s.state != PayerAwaitingConfirm {
		return nil, NewError(CodeInvalidData, "await_confirm called outside AwaitingConfirm state")
	}
	var msg InteractiveMessage
	if err := s.channel.Recv(&msg); err != nil {
		s.state = PayerFailed
		return nil, err
	}
	switch msg.Type {
	case "confirm_receipt":
		if msg.Receipt == nil {
			s.state = PayerFailed
			return nil, NewError(CodeInvalidData, "confirm_receipt missing receipt")
		}
		s.receipt = msg.Receipt
		s.state = PayerDone
		return msg.Receipt, nil
	case "reject":
		s.state = PayerFailed
		s.failReason = msg.Reason
		return nil, ErrPaymentRejected
	case "cancel":
		s.state = PayerFailed
		s.failReason = msg.Reason
		return nil, NewError(CodeInvalidData, "payment cancelled: "+msg.Reason)
	default:
		s.state = PayerFailed
		return nil, NewError(CodeInvalidData, "unexpected message type "+msg.Type)
	}
}

// PayeeState is the payee side of the interactive session state machine
// (spec §4.10): Idle -> Producing -> Sent -> Done.
type PayeeState int

const (
	PayeeIdle PayeeState = iota
	PayeeProducing
	PayeeSent
	PayeeDone
	PayeeFailed
)

// PayeeSession drives the payee side of one interactive payment.
type PayeeSession struct {
	channel *Channel
	state   PayeeState
	request *InteractiveMessage
}

// NewPayeeSession wraps an established Channel for the payee role.
func NewPayeeSession(channel *Channel) *PayeeSession {
	return &PayeeSession{channel: channel, state: PayeeIdle}
}

func (s *PayeeSession) State() PayeeState { return s.state }

// AwaitRequest blocks for the payer's request_receipt and transitions
// Idle -> Producing.
func (s *PayeeSession) AwaitRequest() (*InteractiveMessage, error) {
	if s.state != PayeeIdle {
		return nil, NewError(CodeInvalidData, "await_request called outside Idle state")
	}
	var msg InteractiveMessage
	if err := s.channel.Recv(&msg); err != nil {
		s.state = PayeeFailed
		return nil, err
	}
	if msg.Type != "request_receipt" {
		s.state = PayeeFailed
		return nil, NewError(CodeInvalidData, "expected request_receipt, got "+msg.Type)
	}
	s.request = &msg
	s.state = PayeeProducing
	return &msg, nil
}

// SendConfirmReceipt sends the generated receipt and transitions
// Producing -> Sent -> Done.
func (s *PayeeSession) SendConfirmReceipt(receipt PaykitReceipt) error {
	if s.state != PayeeProducing {
		return NewError(CodeInvalidData, "send_confirm_receipt called outside Producing state")
	}
	s.state = PayeeSent
	msg := InteractiveMessage{Type: "confirm_receipt", Receipt: &receipt}
	if err := s.channel.Send(msg); err != nil {
		s.state = PayeeFailed
		return err
	}
	s.state = PayeeDone
	return nil
}

// SendReject sends a rejection and moves to Failed.
func (s *PayeeSession) SendReject(reason string) error {
	s.state = PayeeFailed
	return s.channel.Send(InteractiveMessage{Type: "reject", Reason: reason})
}
